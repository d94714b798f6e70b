package middleware

import (
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/google/uuid"
)

// TraceIDKey is the registry key holding the request's trace ID.
const TraceIDKey = "trace_id"

// TraceIDHeader carries the trace ID in requests and responses.
const TraceIDHeader = "X-Trace-ID"

// TraceID creates a hook that assigns each request a trace ID. An incoming
// X-Trace-ID header is reused when it is a valid UUID, otherwise a new one is generated.
// The ID is stored in the request registry and echoed in the response header.
func TraceID() Middleware {
	return common.Hook(func(c *common.Context) {
		traceID := c.Header().Get(TraceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}
		c.Values().Set(TraceIDKey, traceID)
		c.ResponseWriter().Header().Set(TraceIDHeader, traceID)
	})
}

// GetTraceID returns the request's trace ID, or "" when the TraceID hook did not run.
func GetTraceID(c *common.Context) string {
	traceID, _ := common.Value[string](c.Values(), TraceIDKey)
	return traceID
}
