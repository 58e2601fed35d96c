// middleware.go - Request logging and metrics middleware
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flight-replay/backend/internal/logging"
)

// RequestObserver records per-route request metrics
type RequestObserver interface {
	ObserveRequest(method, route string, code int, d time.Duration)
}

// quietPath reports polling endpoints that would flood the request log
func quietPath(path string) bool {
	return strings.HasSuffix(path, "/status") ||
		strings.HasSuffix(path, "/progress") ||
		path == "/api/health" ||
		path == "/metrics"
}

// RequestLogger logs each request through logger and, when observer is set,
// records its latency under the matched route pattern.
func RequestLogger(logger logging.Logger, observer RequestObserver, logRequests bool) echo.MiddlewareFunc {
	logger = logging.OrNoop(logger).With(logging.String("component", "http"))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			code := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if observer != nil {
				observer.ObserveRequest(req.Method, route, code, elapsed)
			}

			if logRequests && !quietPath(req.URL.Path) {
				fields := []logging.Field{
					logging.String("method", req.Method),
					logging.String("path", req.URL.Path),
					logging.Int("status", code),
					logging.Duration("latency", elapsed),
				}
				if err != nil {
					fields = append(fields, logging.Err(err))
				}
				if code >= 500 {
					logger.Error(req.Context(), "request failed", fields...)
				} else {
					logger.Info(req.Context(), "request", fields...)
				}
			}
			return nil
		}
	}
}
