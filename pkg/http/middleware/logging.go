package middleware

import (
	"time"

	applogger "PatternScope/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestLogging assigns a request id and logs every request once it completes.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			res.Header().Set(echo.HeaderXRequestID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("request_id", id),
				applogger.String("method", req.Method),
				applogger.String("route", routeOf(c)),
				applogger.String("remote_ip", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				l.Warn("http request", append(fields, applogger.Error(err))...)
				return nil
			}
			l.Debug("http request", fields...)
			return nil
		}
	}
}
