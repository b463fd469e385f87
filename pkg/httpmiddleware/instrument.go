package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Route names the otelhttp span and metrics of a request after the matched
// gin route. It expects the engine to be wrapped with otelhttp.NewHandler.
func Route() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		trace.SpanFromContext(ctx).SetName(c.Request.Method + " " + route)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attribute.String("http.route", route))
		}
		c.Next()
	}
}
