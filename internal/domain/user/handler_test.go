package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func newSessionContext(e *echo.Echo, method, body string, uid uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != uuid.Nil {
		c.Set(auth.EchoUIDKey, uid.String())
		c.Set(auth.EchoRoleKey, auth.RoleClient)
	}
	return c, rec
}

func httpStatusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_GetMe(t *testing.T) {
	h, e := newTestHandler()
	u := &User{UID: uuid.New(), Email: "me@example.com"}
	h.svc.CreateProfile(context.Background(), u)

	c, rec := newSessionContext(e, http.MethodGet, "", u.UID)
	if err := h.GetMe(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Email != "me@example.com" {
		t.Errorf("unexpected body: %+v", got)
	}
}

func TestHandler_GetMe_NoSession(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newSessionContext(e, http.MethodGet, "", uuid.Nil)
	err := h.GetMe(c)
	if httpStatusOf(t, err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_GetMe_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newSessionContext(e, http.MethodGet, "", uuid.New())
	err := h.GetMe(c)
	if httpStatusOf(t, err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateMe(t *testing.T) {
	h, e := newTestHandler()
	u := &User{UID: uuid.New(), Email: "me@example.com"}
	h.svc.CreateProfile(context.Background(), u)

	c, rec := newSessionContext(e, http.MethodPut, `{"display_name":"Ada","bio":"herbalist"}`, u.UID)
	if err := h.UpdateMe(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got User
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DisplayName == nil || *got.DisplayName != "Ada" {
		t.Errorf("display name not applied: %+v", got)
	}
	if got.Bio == nil || *got.Bio != "herbalist" {
		t.Errorf("bio not applied: %+v", got)
	}
}

func TestHandler_UpdateMe_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newSessionContext(e, http.MethodPut, `{"display_name":"Ada"}`, uuid.New())
	err := h.UpdateMe(c)
	if httpStatusOf(t, err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
