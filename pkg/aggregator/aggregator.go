// Package aggregator discovers, caches, and namespaces tools across every
// enabled backend connector. The aggregated catalog is immutable once built;
// hot reload swaps in a freshly constructed Aggregator rather than mutating
// one in place.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/connector"
	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
)

// Separator joins a connector id and a tool's own name into the namespaced
// name. Reversal never parses the string: the index map is authoritative, so
// ids containing the separator stay unambiguous.
const Separator = "__"

// Target identifies the origin of a namespaced tool
type Target struct {
	ConnectorID string
	ToolName    string
}

// Summary is the per-connector discovery outcome
type Summary struct {
	ID        string
	ToolCount int
	Healthy   bool
	Error     string
}

// Aggregator owns the namespaced tool cache for one connector set.
type Aggregator struct {
	connectors []connector.Connector
	factory    connector.ClientFactory
	logger     logging.Logger

	mu        sync.Mutex
	loaded    bool
	clients   map[string]connector.TransportClient
	tools     []protocol.Tool
	index     map[string]Target
	summaries map[string]*Summary
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// New creates an Aggregator over the enabled subset of the given connectors.
// No backend is contacted until Preload.
func New(connectors []connector.Connector, factory connector.ClientFactory, opts ...Option) *Aggregator {
	enabled := connector.Enabled(connectors)
	// Deterministic composition order, independent of config order.
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	a := &Aggregator{
		connectors: enabled,
		factory:    factory,
		logger:     logging.New(nil, nil),
		clients:    make(map[string]connector.TransportClient),
		index:      make(map[string]Target),
		summaries:  make(map[string]*Summary),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type discovery struct {
	id    string
	tools []protocol.Tool
	err   error
}

// Preload concurrently queries every enabled backend for its tool catalog
// and builds the namespaced cache. One backend's failure never aborts
// discovery for the others: a failing backend is recorded unhealthy with
// zero tools and the gateway still starts. Preload waits for all backend
// outcomes before composing the cache.
func (a *Aggregator) Preload(ctx context.Context) error {
	results := make([]discovery, len(a.connectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range a.connectors {
		i, c := i, c
		g.Go(func() error {
			client, err := a.factory.NewClient(c)
			if err != nil {
				results[i] = discovery{id: c.ID, err: gwerrors.DiscoveryFailure(c.ID, err)}
				return nil
			}

			a.mu.Lock()
			a.clients[c.ID] = client
			a.mu.Unlock()

			tools, err := client.DiscoverTools(gctx)
			if err != nil {
				results[i] = discovery{id: c.ID, err: gwerrors.DiscoveryFailure(c.ID, err)}
				return nil
			}
			results[i] = discovery{id: c.ID, tools: tools}
			return nil
		})
	}
	// Goroutines never return errors; Wait only observes ctx cancellation
	// raced through gctx.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.compose(results)
	a.loaded = true
	return nil
}

// compose rebuilds the cache from discovery results. Caller holds a.mu.
func (a *Aggregator) compose(results []discovery) {
	a.tools = a.tools[:0]
	a.index = make(map[string]Target)
	a.summaries = make(map[string]*Summary)

	for _, res := range results {
		summary := &Summary{ID: res.id, Healthy: true}
		a.summaries[res.id] = summary

		if res.err != nil {
			summary.Healthy = false
			summary.Error = res.err.Error()
			a.logger.Warn("backend discovery failed",
				logging.String("connector", res.id),
				logging.ErrorField(res.err))
			continue
		}

		for _, tool := range res.tools {
			name := a.namespacedName(res.id, tool.Name)
			a.index[name] = Target{ConnectorID: res.id, ToolName: tool.Name}
			namespaced := tool
			namespaced.Name = name
			a.tools = append(a.tools, namespaced)
		}
		summary.ToolCount = len(res.tools)

		a.logger.Debug("backend discovered",
			logging.String("connector", res.id),
			logging.Int("tools", len(res.tools)))
	}
}

// namespacedName derives a globally unique name. Connector ids are unique,
// so collisions only arise from ids that themselves embed the separator; a
// deterministic numeric suffix resolves those. Caller holds a.mu.
func (a *Aggregator) namespacedName(connectorID, toolName string) string {
	name := connectorID + Separator + toolName
	if _, taken := a.index[name]; !taken {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%s%d", name, Separator, n)
		if _, taken := a.index[candidate]; !taken {
			return candidate
		}
	}
}

// AggregatedTools returns the cached namespaced tool list, preloading on
// first use. A backend that already failed is never re-queried; invalidate
// and rebuild to retry it.
func (a *Aggregator) AggregatedTools(ctx context.Context) ([]protocol.Tool, error) {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()

	if !loaded {
		if err := a.Preload(ctx); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.Tool, len(a.tools))
	copy(out, a.tools)
	return out, nil
}

// Resolve maps a namespaced name back to its originating backend.
func (a *Aggregator) Resolve(namespacedName string) (Target, connector.TransportClient, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	target, ok := a.index[namespacedName]
	if !ok {
		return Target{}, nil, false
	}
	client, ok := a.clients[target.ConnectorID]
	if !ok {
		return Target{}, nil, false
	}
	return target, client, true
}

// Client returns the transport client for a connector id.
func (a *Aggregator) Client(connectorID string) (connector.TransportClient, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	client, ok := a.clients[connectorID]
	return client, ok
}

// Summaries returns the per-connector discovery outcomes, sorted by id.
func (a *Aggregator) Summaries() []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Summary, 0, len(a.summaries))
	for _, s := range a.summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connectors returns the enabled connector set this aggregator was built on.
func (a *Aggregator) Connectors() []connector.Connector {
	out := make([]connector.Connector, len(a.connectors))
	copy(out, a.connectors)
	return out
}

// InvalidateCache drops all cached state. The next AggregatedTools call
// rediscovers every backend.
func (a *Aggregator) InvalidateCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = false
	a.tools = nil
	a.index = make(map[string]Target)
	a.summaries = make(map[string]*Summary)
	a.clients = make(map[string]connector.TransportClient)
}
