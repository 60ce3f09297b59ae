package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/log"
)

// AccessLog writes one line per request through logger.
func AccessLog(logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":     req.Method,
				"path":       c.Path(),
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
			}
			if p, ok := PrincipalFrom(c); ok {
				fields["user_id"] = p.AccountID
			}

			if c.Response().Status >= 500 {
				logger.Error(req.Context(), "HTTP request failed", err, fields)
			} else {
				logger.Info(req.Context(), "HTTP request", fields)
			}
			return nil
		}
	}
}
