package httpmiddleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InjectLogger stores lg in the request context, tagged with the request id
// when RequestID ran before it.
func InjectLogger(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		l := lg
		if id := RequestIDFromContext(ctx); id != "" {
			l = l.With(zap.String("request_id", id))
		}
		c.Request = c.Request.WithContext(zctx.Base(ctx, l))
		c.Next()
	}
}

// LogRequests logs one line per request after it completes. Server errors
// are logged at error level, everything else at debug.
func LogRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.String("errors", errs.String()))
		}

		lg := zctx.From(c.Request.Context())
		if status >= 500 {
			lg.Error("Request", fields...)
			return
		}
		lg.Debug("Request", fields...)
	}
}
