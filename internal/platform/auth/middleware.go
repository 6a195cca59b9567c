package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Roles carried in access token claims.
const (
	RoleClient       = "client"
	RolePractitioner = "practitioner"
)

type contextKey string

const (
	uidContextKey  contextKey = "session_uid"
	roleContextKey contextKey = "session_role"
)

// Echo context keys set by SessionMiddleware, for handlers that read from
// echo.Context rather than the request context.
const (
	EchoUIDKey  = "session_uid"
	EchoRoleKey = "session_role"
)

// ContextWithSession returns a context carrying the authenticated user's uid
// and role.
func ContextWithSession(ctx context.Context, uid, role string) context.Context {
	ctx = context.WithValue(ctx, uidContextKey, uid)
	return context.WithValue(ctx, roleContextKey, role)
}

// UIDFromContext returns the authenticated uid, or "" when the request is
// unauthenticated.
func UIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(uidContextKey).(string)
	return uid
}

// RoleFromContext returns the authenticated role, or "" when the request is
// unauthenticated.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}

// SessionUID returns the authenticated subject of the request as a UUID.
func SessionUID(c echo.Context) (uuid.UUID, bool) {
	raw, _ := c.Get(EchoUIDKey).(string)
	if raw == "" {
		return uuid.Nil, false
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return uid, true
}

// SessionRole returns the role claim bound to the request, or "" when the
// request is unauthenticated.
func SessionRole(c echo.Context) string {
	role, _ := c.Get(EchoRoleKey).(string)
	return role
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		// Browser WebSocket clients cannot set headers on the upgrade
		// request, so the token may ride a query parameter instead.
		return c.QueryParam("token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func setSession(c echo.Context, claims *Claims) {
	c.Set(EchoUIDKey, claims.UID)
	c.Set(EchoRoleKey, claims.Role)

	ctx := ContextWithSession(c.Request().Context(), claims.UID, claims.Role)
	c.SetRequest(c.Request().WithContext(ctx))
}

// SessionMiddleware validates the bearer access token and stores the session
// identity on both the echo context and the request context. Requests for
// public paths pass through untouched.
func SessionMiddleware(tm *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed authorization header")
			}
			claims, err := tm.ParseAccessToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			setSession(c, claims)
			return next(c)
		}
	}
}

// OptionalSession decodes a bearer token when one is present but lets
// unauthenticated requests through. Handlers serving both public and
// personalized views use it to detect the caller.
func OptionalSession(tm *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := bearerToken(c); token != "" {
				if claims, err := tm.ParseAccessToken(token); err == nil {
					setSession(c, claims)
				}
			}
			return next(c)
		}
	}
}

// RequireRole rejects authenticated requests whose role is not in the allowed
// set. It must run after SessionMiddleware.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(EchoRoleKey).(string)
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !allowed[role] {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// APIKeyMiddleware gates a route group behind the public API key. The key
// travels as a "key" query parameter or an X-API-Key header.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	expected := []byte(apiKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.QueryParam("key")
			if got == "" {
				got = c.Request().Header.Get("X-API-Key")
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, Message(NewError(CodeInvalidAPIKey, nil)))
			}
			return next(c)
		}
	}
}

// publicPaths are served without a session. Auth endpoints carry their own
// API key gate, confirmation endpoints are hit from email links, and the
// health and client-config endpoints back unauthenticated bootstraps.
var publicPaths = map[string]bool{
	"/healthz":                            true,
	"/readyz":                             true,
	"/api/v1/config/client":               true,
	"/api/v1/auth/signup":                 true,
	"/api/v1/auth/signin":                 true,
	"/api/v1/auth/federated":              true,
	"/api/v1/auth/refresh":                true,
	"/api/v1/auth/password-reset":         true,
	"/api/v1/auth/password-reset/confirm": true,
	"/api/v1/auth/verify-email/confirm":   true,
}

// IsPublicPath reports whether the method and path are served without a
// session. Practitioner directory reads are public so prospective clients can
// browse before creating an account.
func IsPublicPath(method, path string) bool {
	if publicPaths[path] {
		return true
	}
	if method == http.MethodGet && (path == "/api/v1/practitioners" || strings.HasPrefix(path, "/api/v1/practitioners/")) {
		return true
	}
	return false
}

// AuthSkipper adapts IsPublicPath to the echo middleware skipper signature.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().Method, c.Request().URL.Path)
}
