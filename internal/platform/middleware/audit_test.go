package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
)

func newAccessLogContext(t *testing.T, method, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAccessLog_RecordsEntry(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, _ := newAccessLogContext(t, http.MethodGet, "/api/v1/appointments/6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	c.Set("request_id", "req-123")

	ctx := auth.ContextWithSession(c.Request().Context(), "user-42", "practitioner")
	c.SetRequest(c.Request().WithContext(ctx))

	var recorded []AccessEntry
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		recorded = append(recorded, entry)
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := AccessLog(logger, recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(recorded))
	}

	entry := recorded[0]
	if entry.UserID != "user-42" {
		t.Errorf("expected user-42, got %q", entry.UserID)
	}
	if entry.Role != "practitioner" {
		t.Errorf("expected practitioner role, got %q", entry.Role)
	}
	if entry.ResourceType != "appointments" {
		t.Errorf("expected appointments resource, got %q", entry.ResourceType)
	}
	if entry.ResourceID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("expected document ID, got %q", entry.ResourceID)
	}
	if entry.Action != "read" {
		t.Errorf("expected read action, got %q", entry.Action)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("expected req-123, got %q", entry.RequestID)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected 200 status, got %d", entry.StatusCode)
	}
}

func TestAccessLog_CollectionReadIsSearch(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, _ := newAccessLogContext(t, http.MethodGet, "/api/v1/appointments?status=pending")

	var recorded []AccessEntry
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		recorded = append(recorded, entry)
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := AccessLog(logger, recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(recorded))
	}
	if recorded[0].Action != "search" {
		t.Errorf("expected search action for collection read, got %q", recorded[0].Action)
	}
	if recorded[0].ResourceID != "" {
		t.Errorf("expected empty resource ID, got %q", recorded[0].ResourceID)
	}
}

func TestAccessLog_SkipsUnversionedPaths(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, _ := newAccessLogContext(t, http.MethodGet, "/healthz")

	var recorded []AccessEntry
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		recorded = append(recorded, entry)
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := AccessLog(logger, recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorded) != 0 {
		t.Errorf("expected no entries for health probe, got %d", len(recorded))
	}
}

func TestAccessLog_RecorderErrorDoesNotFailRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, rec := newAccessLogContext(t, http.MethodPost, "/api/v1/appointments")

	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "sink down")
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusCreated, "created")
	}

	mw := AccessLog(logger, recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("expected request to succeed despite recorder failure, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodHead, "read"},
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodPatch, "update"},
		{http.MethodDelete, "delete"},
		{"TRACE", "read"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method); got != tt.want {
			t.Errorf("httpMethodToAction(%s) = %q, want %q", tt.method, got, tt.want)
		}
	}
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path     string
		wantType string
		wantID   string
	}{
		{"/api/v1/appointments", "appointments", ""},
		{"/api/v1/appointments/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "appointments", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"/api/v1/practitioners/not-a-uuid", "practitioners", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		gotType, gotID := splitResourcePath(tt.path)
		if gotType != tt.wantType || gotID != tt.wantID {
			t.Errorf("splitResourcePath(%q) = (%q, %q), want (%q, %q)",
				tt.path, gotType, gotID, tt.wantType, tt.wantID)
		}
	}
}
