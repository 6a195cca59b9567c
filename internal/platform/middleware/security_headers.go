package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security response headers on
// every request. Responses under authenticated routes additionally get
// Cache-Control: no-store so personal health data never lands in shared
// caches; public routes keep their own caching semantics.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Prevent MIME type sniffing
			h.Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			h.Set("X-Frame-Options", "DENY")

			// Strict CSP for a JSON API: deny all resource loading and
			// frame embedding.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// HTTP Strict Transport Security, 1 year including subdomains.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// Do not send Referer header to downstream services.
			h.Set("Referrer-Policy", "no-referrer")

			if !isPubliclyCacheablePath(c.Request().URL.Path) {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}

// isPubliclyCacheablePath reports whether the path serves data with no
// personal content. Only these routes may carry cache headers.
func isPubliclyCacheablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/practitioners") ||
		path == "/api/v1/config/client" ||
		path == "/healthz"
}
