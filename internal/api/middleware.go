package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// userIDKey is the echo context key holding the caller's id.
const userIDKey = "user_id"

// ExtractUserID stores the numeric X-User-ID header in the request
// context. A missing or malformed header leaves the caller anonymous.
func ExtractUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := c.Request().Header.Get("X-User-ID"); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					c.Set(userIDKey, id)
				}
			}
			return next(c)
		}
	}
}

// GetUserID returns the caller's id and whether one was supplied.
func GetUserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(userIDKey).(int64)
	return id, ok
}

func (s *Server) requireAllowed(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := GetUserID(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "X-User-ID header is required")
		}
		if !s.auth.Allowed(id) {
			return errorJSON(c, http.StatusForbidden, "not authorized")
		}
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := GetUserID(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "X-User-ID header is required")
		}
		if !s.auth.IsAdmin(id) {
			return errorJSON(c, http.StatusForbidden, "admin only")
		}
		return next(c)
	}
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
