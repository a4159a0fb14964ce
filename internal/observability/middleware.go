package observability

import (
	"time"

	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	routeUnmatched      = "unmatched"
	protocolNone        = "-"
	protocolUnsupported = "unsupported"
)

// quietRoutes are polled by monitors and only logged at debug level.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger logs one line per console request with the protocol and
// creation session it addressed.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := requestRoute(c)

		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case quietRoutes[route]:
			event = logger.Debug()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("protocol", requestProtocol(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if session := c.Param("session"); session != "" {
			event = event.Str("session", session)
		}
		event.Msg("console.request")
	}
}

// RequestMetricsMiddleware records console requests by route template and
// protocol key.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, requestRoute(c), requestProtocol(c), c.Writer.Status(), time.Since(start))
	}
}

// requestRoute is the matched route template. Unmatched paths share one
// label so scanners cannot grow the series set.
func requestRoute(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return routeUnmatched
}

// requestProtocol maps the :id parameter to a known protocol key.
func requestProtocol(c *gin.Context) string {
	id := c.Param("id")
	if id == "" {
		return protocolNone
	}
	desc, err := protocol.Lookup(id)
	if err != nil {
		return protocolUnsupported
	}
	return string(desc.Key)
}
