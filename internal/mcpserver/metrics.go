package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// Metrics receives (method, latency, is_error) for every dispatched MCP
// call, mirroring exttools.Metrics' shape for the tool-call surface.
type Metrics interface {
	RecordCall(method string, latency time.Duration, isError bool)
}

// logMetrics is the default Metrics sink: it logs each dispatched call at
// debug level. A real deployment swaps this for a Prometheus/StatsD-backed
// implementation via SetMetrics.
type logMetrics struct {
	log *logrus.Entry
}

func newLogMetrics(log *logrus.Entry) *logMetrics {
	return &logMetrics{log: log}
}

func (m *logMetrics) RecordCall(method string, latency time.Duration, isError bool) {
	m.log.WithFields(logrus.Fields{
		"method":   method,
		"latency":  latency,
		"is_error": isError,
	}).Debug("mcp call dispatched")
}

// SetMetrics swaps the dispatch-level metrics sink.
func (ams *AgenticMemoryServer) SetMetrics(m Metrics) {
	ams.mu.Lock()
	defer ams.mu.Unlock()
	ams.metrics = m
}

// metricsMiddleware wraps every dispatched MCP method call and records
// (method, latency, is_error) with the configured Metrics sink.
func (ams *AgenticMemoryServer) metricsMiddleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			ams.mu.RLock()
			m := ams.metrics
			ams.mu.RUnlock()
			m.RecordCall(method, time.Since(start), err != nil)
			return result, err
		}
	}
}
