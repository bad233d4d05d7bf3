// Package apiutil holds gin helpers shared by the admin, front and webhook APIs.
package apiutil

import (
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TraceIDHeader carries the request trace id.
const TraceIDHeader = "X-Trace-ID"

// traceIDKey is the gin context key of the trace id.
const traceIDKey = "traceID"

// TraceIDMiddleware assigns a trace id, reusing a well-formed incoming one.
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(TraceIDHeader))
		if _, errParse := uuid.Parse(traceID); errParse != nil {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Writer.Header().Set(TraceIDHeader, traceID)
		c.Next()
	}
}

// TraceID returns the trace id of the request, empty outside TraceIDMiddleware.
func TraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

// RequestLogger logs one line per request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := log.WithFields(log.Fields{
			"trace_id": TraceID(c),
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if raw := c.Request.URL.RawQuery; raw != "" {
			entry = entry.WithField("query", util.MaskSensitiveQuery(raw))
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Warn("request failed")
		case path == "/healthz":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
