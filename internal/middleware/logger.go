package middleware

import (
	"slices"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/gin-gonic/gin"
)

// LoggerKey is the context key for the request-scoped logger.
const LoggerKey = "logger"

// Logger logs every request with its outcome and stores a request-scoped
// logger in the context. Requests to quietPaths are only logged when they
// fail; probes and metric scrapes would otherwise drown the import logs.
func Logger(log *logger.Logger, quietPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.WithRequestID(GetRequestID(c))
		c.Set(LoggerKey, requestLogger)

		c.Next()

		status := c.Writer.Status()
		if status < 400 && slices.Contains(quietPaths, c.Request.URL.Path) {
			return
		}

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}
		if c.Request.URL.RawQuery != "" {
			fields["query"] = c.Request.URL.RawQuery
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= 500:
			requestLogger.Error("Request completed with server error", nil, fields)
		case status >= 400:
			requestLogger.Warn("Request completed with client error", fields)
		default:
			requestLogger.Info("Request completed", fields)
		}
	}
}

// GetLogger retrieves the logger from the Gin context.
// Returns nil if not found.
func GetLogger(c *gin.Context) *logger.Logger {
	if v, exists := c.Get(LoggerKey); exists {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return nil
}
