// Package router resolves namespaced tool names back to their backend and
// forwards calls. It distinguishes the two failure classes the primary
// channel must keep apart: a call that could not be executed (an error
// return) and a call that executed but whose result the backend flagged as
// an application error (IsError on the result, content intact).
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/aggregator"
	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
)

// MetricsRecorder receives per-call timing. Satisfied by the observability
// package's metrics provider; nil-safe via the noop default.
type MetricsRecorder interface {
	RecordToolCall(ctx context.Context, tool, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordToolCall(context.Context, string, string, time.Duration) {}

// Router forwards tools/call requests to the backend owning the tool.
type Router struct {
	agg     *aggregator.Aggregator
	logger  logging.Logger
	metrics MetricsRecorder
}

// Option configures a Router
type Option func(*Router)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics MetricsRecorder) Option {
	return func(r *Router) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// New creates a Router over the given aggregator.
func New(agg *aggregator.Aggregator, opts ...Option) *Router {
	r := &Router{
		agg:     agg,
		logger:  logging.New(nil, nil),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteToolCall resolves namespacedName and delegates the call to the
// backend's transport client. An unresolvable name returns an error matching
// gwerrors.ErrNotRoutable; it is a data-level routing failure, never a
// protocol-level method-not-found, because the enclosing tools/call request
// was well-formed. No timeout is imposed here: a slow backend delays only
// its own caller.
func (r *Router) RouteToolCall(ctx context.Context, namespacedName string, args json.RawMessage) (*protocol.CallToolResult, error) {
	target, client, ok := r.agg.Resolve(namespacedName)
	if !ok {
		r.metrics.RecordToolCall(ctx, namespacedName, "unroutable", 0)
		return nil, gwerrors.NotRoutable(namespacedName)
	}

	start := time.Now()
	result, err := client.CallTool(ctx, target.ToolName, args)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.RecordToolCall(ctx, namespacedName, "transport_error", elapsed)
		r.logger.Warn("backend call failed",
			logging.String("connector", target.ConnectorID),
			logging.String("tool", target.ToolName),
			logging.ErrorField(err))
		return nil, gwerrors.BackendFailure(target.ConnectorID, err)
	}
	if result == nil {
		// An executed call always surfaces a result downstream.
		result = &protocol.CallToolResult{}
	}

	status := "ok"
	if result.IsError {
		status = "tool_error"
	}
	r.metrics.RecordToolCall(ctx, namespacedName, status, elapsed)

	r.logger.Debug("tool call routed",
		logging.String("connector", target.ConnectorID),
		logging.String("tool", target.ToolName),
		logging.Bool("is_error", result.IsError),
		logging.Duration("elapsed", elapsed))

	return result, nil
}
