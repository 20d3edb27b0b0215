package middleware

import "github.com/labstack/echo/v4"

// Context keys set by the JWT middleware.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated staff user, or "" for anonymous
// requests.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the role of the authenticated staff user, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}
