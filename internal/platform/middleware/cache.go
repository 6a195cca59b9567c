package middleware

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// PublicCacheConfig holds response caching configuration for public,
// non-personal endpoints such as the practitioner directory.
type PublicCacheConfig struct {
	TTL    time.Duration // how long cached responses stay fresh
	MaxAge int           // Cache-Control max-age in seconds
	Paths  []string      // path prefixes eligible for caching
	Store  CacheStore    // backend; defaults to an in-memory store
}

// DefaultPublicCacheConfig returns caching defaults for the public API
// surface: the practitioner directory and the client configuration document.
func DefaultPublicCacheConfig() PublicCacheConfig {
	return PublicCacheConfig{
		TTL:    30 * time.Second,
		MaxAge: 30,
		Paths:  []string{"/api/v1/practitioners", "/api/v1/config/client"},
	}
}

// CacheStore defines the interface for a response cache backend.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Clear()
}

// cacheEntry holds a cached value and its expiration time.
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryCacheStore is a thread-safe in-memory CacheStore with lazy expiration.
type InMemoryCacheStore struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

// NewInMemoryCacheStore creates a new InMemoryCacheStore.
func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{
		entries: make(map[string]*cacheEntry),
	}
}

// Get retrieves a value from the cache. Performs lazy expiration: deletes the
// entry and returns a miss if it has expired.
func (s *InMemoryCacheStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

// Set stores a value in the cache with the given TTL.
func (s *InMemoryCacheStore) Set(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &cacheEntry{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a single entry from the cache.
func (s *InMemoryCacheStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes all entries from the cache.
func (s *InMemoryCacheStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheEntry)
}

// StartCleanup runs a background goroutine that periodically removes expired
// entries. It stops when the context is cancelled.
func (s *InMemoryCacheStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for k, v := range s.entries {
					if now.After(v.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// bufferedResponseWriter captures the response body in a buffer so it can be
// inspected and cached before flushing to the real writer.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		writer:     w,
		buf:        &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

// Header returns the underlying writer's header map so that headers set by
// handlers are visible to both the middleware and the final flush.
func (w *bufferedResponseWriter) Header() http.Header {
	return w.writer.Header()
}

// Write captures bytes into the buffer instead of sending them immediately.
func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// WriteHeader captures the status code without writing it to the underlying writer.
func (w *bufferedResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

// Flush implements http.Flusher (no-op for buffer).
func (w *bufferedResponseWriter) Flush() {}

// flushTo writes the buffered status and body to the underlying writer.
func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// PublicCache returns middleware that caches successful GET responses for the
// configured public paths. Cached responses are keyed by path and query string
// and served with an ETag; a matching If-None-Match yields 304 Not Modified
// without invoking the handler.
func PublicCache(config PublicCacheConfig) echo.MiddlewareFunc {
	store := config.Store
	if store == nil {
		store = NewInMemoryCacheStore()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if req.Method != http.MethodGet || !pathCacheable(req.URL.Path, config.Paths) {
				return next(c)
			}

			key := req.URL.Path
			if req.URL.RawQuery != "" {
				key += "?" + req.URL.RawQuery
			}

			res := c.Response()
			if body, ok := store.Get(key); ok {
				etag := computeETag(body)
				if etagMatch(req.Header.Get("If-None-Match"), etag) {
					res.Writer.WriteHeader(http.StatusNotModified)
					return nil
				}
				res.Header().Set("Content-Type", echo.MIMEApplicationJSON)
				res.Header().Set("ETag", etag)
				res.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", config.MaxAge))
				res.Header().Set("X-Cache", "HIT")
				return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
			}

			// Miss: buffer the handler's response so it can be stored.
			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}
			res.Writer = origWriter

			if buf.statusCode == http.StatusOK {
				body := buf.buf.Bytes()
				stored := make([]byte, len(body))
				copy(stored, body)
				store.Set(key, stored, config.TTL)

				etag := computeETag(body)
				res.Header().Set("ETag", etag)
				res.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", config.MaxAge))
				res.Header().Set("X-Cache", "MISS")

				if etagMatch(req.Header.Get("If-None-Match"), etag) {
					origWriter.WriteHeader(http.StatusNotModified)
					return nil
				}
			}

			return buf.flushTo()
		}
	}
}

func pathCacheable(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// computeETag builds a strong ETag from the response body.
func computeETag(body []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(body))
}

// etagMatch reports whether the If-None-Match header value matches the given
// ETag. The wildcard "*" matches any representation.
func etagMatch(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
