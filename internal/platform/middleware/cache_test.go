package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestInMemoryCacheStore_SetGet(t *testing.T) {
	store := NewInMemoryCacheStore()

	store.Set("key1", []byte("value1"), 1*time.Minute)

	got, ok := store.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "value1" {
		t.Errorf("expected value1, got %s", got)
	}
}

func TestInMemoryCacheStore_Miss(t *testing.T) {
	store := NewInMemoryCacheStore()

	if _, ok := store.Get("absent"); ok {
		t.Error("expected cache miss for absent key")
	}
}

func TestInMemoryCacheStore_Expiration(t *testing.T) {
	store := NewInMemoryCacheStore()

	store.Set("short", []byte("v"), 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := store.Get("short"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestInMemoryCacheStore_DeleteAndClear(t *testing.T) {
	store := NewInMemoryCacheStore()

	store.Set("a", []byte("1"), time.Minute)
	store.Set("b", []byte("2"), time.Minute)

	store.Delete("a")
	if _, ok := store.Get("a"); ok {
		t.Error("expected deleted key to miss")
	}
	if _, ok := store.Get("b"); !ok {
		t.Error("expected remaining key to hit")
	}

	store.Clear()
	if _, ok := store.Get("b"); ok {
		t.Error("expected cleared store to miss")
	}
}

func newPublicCacheEcho(hits *int) *echo.Echo {
	e := echo.New()
	e.Use(PublicCache(PublicCacheConfig{
		TTL:    time.Minute,
		MaxAge: 30,
		Paths:  []string{"/api/v1/practitioners"},
	}))
	e.GET("/api/v1/practitioners", func(c echo.Context) error {
		*hits++
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data": []string{"dr-one", "dr-two"},
		})
	})
	e.GET("/api/v1/appointments", func(c echo.Context) error {
		*hits++
		return c.JSON(http.StatusOK, map[string]interface{}{"data": []string{}})
	})
	return e
}

func TestPublicCache_ServesFromCacheOnSecondRequest(t *testing.T) {
	hits := 0
	e := newPublicCacheEcho(&hits)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request: expected X-Cache MISS, got %q", rec.Header().Get("X-Cache"))
	}
	firstBody := rec.Body.String()

	req = httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("second request: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request: expected X-Cache HIT, got %q", rec.Header().Get("X-Cache"))
	}
	if rec.Body.String() != firstBody {
		t.Error("expected cached body to match original response")
	}
	if hits != 1 {
		t.Errorf("expected handler to run once, ran %d times", hits)
	}
}

func TestPublicCache_DistinctQueriesCachedSeparately(t *testing.T) {
	hits := 0
	e := newPublicCacheEcho(&hits)

	for _, target := range []string{
		"/api/v1/practitioners?limit=10",
		"/api/v1/practitioners?limit=20",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
	}

	if hits != 2 {
		t.Errorf("expected handler to run twice for distinct queries, ran %d times", hits)
	}
}

func TestPublicCache_NotModifiedOnMatchingETag(t *testing.T) {
	hits := 0
	e := newPublicCacheEcho(&hits)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on cached response")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for matching ETag, got %d", rec.Code)
	}
}

func TestPublicCache_SkipsUnlistedPaths(t *testing.T) {
	hits := 0
	e := newPublicCacheEcho(&hits)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Header().Get("X-Cache") != "" {
			t.Error("expected no cache headers on unlisted path")
		}
	}

	if hits != 2 {
		t.Errorf("expected handler to run for every request on unlisted path, ran %d times", hits)
	}
}

func TestEtagMatch(t *testing.T) {
	tests := []struct {
		ifNoneMatch string
		etag        string
		want        bool
	}{
		{"", `"abc"`, false},
		{"*", `"abc"`, true},
		{`"abc"`, `"abc"`, true},
		{`"xyz"`, `"abc"`, false},
		{`"xyz", "abc"`, `"abc"`, true},
		{`W/"abc"`, `"abc"`, true},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.ifNoneMatch, tt.etag); got != tt.want {
			t.Errorf("etagMatch(%q, %q) = %v, want %v", tt.ifNoneMatch, tt.etag, got, tt.want)
		}
	}
}
