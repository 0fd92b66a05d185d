package gateway

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/connector"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/ipc"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
)

// Reload re-reads the connector configuration and, when it changed, swaps in
// a freshly discovered aggregator/router pair. Reloads are serialized; the
// primary channel keeps serving throughout, and in-flight calls finish
// against the pair they started with. Any failure leaves the previous pair
// in force.
func (g *Gateway) Reload(ctx context.Context) ipc.ReloadResult {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	next, err := g.loader.Load(ctx)
	if err != nil {
		return g.reloadFailed(ctx, fmt.Sprintf("configuration load failed: %v", err))
	}
	for _, c := range next {
		if err := c.Validate(); err != nil {
			return g.reloadFailed(ctx, fmt.Sprintf("invalid connector %q: %v", c.ID, err))
		}
	}

	diff := connector.Compare(g.connectors, next)
	if diff.Empty() {
		g.logger.Info("reload requested, no changes")
		g.metrics.RecordReload(ctx, "no_changes")
		return ipc.ReloadResult{
			Success:            true,
			ReloadedConnectors: []string{},
			FailedConnectors:   []string{},
			Message:            "no changes",
		}
	}

	pair := g.buildEngine(next)
	if err := pair.agg.Preload(ctx); err != nil {
		return g.reloadFailed(ctx, fmt.Sprintf("preload interrupted: %v", err))
	}

	g.engine.Store(pair)
	g.connectors = next

	g.state.Initialize(connectorStatuses(pair.agg), g.logger.GetLevel().String())
	g.publishBackendHealth(ctx, pair.agg)
	g.metrics.RecordReload(ctx, "ok")

	changed := diff.Union()
	g.logger.Info("reload applied",
		logging.Int("added", len(diff.Added)),
		logging.Int("removed", len(diff.Removed)),
		logging.Int("modified", len(diff.Modified)))

	return ipc.ReloadResult{
		Success:            true,
		ReloadedConnectors: changed,
		FailedConnectors:   []string{},
	}
}

// reloadFailed reports a reload that left the previous state untouched.
func (g *Gateway) reloadFailed(ctx context.Context, message string) ipc.ReloadResult {
	g.logger.Error("reload failed", logging.String("reason", message))
	g.metrics.RecordReload(ctx, "error")
	return ipc.ReloadResult{
		Success:            false,
		ReloadedConnectors: []string{},
		FailedConnectors:   []string{},
		Message:            message,
	}
}
