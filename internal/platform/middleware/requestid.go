package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/platform/backend"
)

// RequestIDHeader is shared with the backend client so an id arriving at the
// BFF is forwarded on every backend call the request makes.
const RequestIDHeader = backend.CorrelationHeader

// RequestIDKey is the echo context key holding the request id.
const RequestIDKey = "request_id"

func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set(RequestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			c.SetRequest(c.Request().WithContext(backend.WithCorrelationID(c.Request().Context(), rid)))
			return next(c)
		}
	}
}
