package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 that carries the request id, so a
// user can quote it. http.ErrAbortHandler is re-raised for net/http.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	logger = logger.With().Str("component", "recovery").Logger()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("%v", r)
				}
				rid, _ := c.Get(RequestIDKey).(string)

				logger.Error().
					Err(cause).
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("stack", string(debug.Stack())).
					Msg("handler panicked")

				msg := "internal error"
				if rid != "" {
					msg += " (request " + rid + ")"
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, msg).
					SetInternal(fmt.Errorf("panic: %w", cause))
			}()
			return next(c)
		}
	}
}
