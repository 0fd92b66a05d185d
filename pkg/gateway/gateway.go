// Package gateway wires the protocol engine together: it owns the frame
// reader, dispatcher, tool aggregator, request router, UI bridge, control
// channel, runtime state, and hot reload coordinator, and exposes one
// primary channel plus one control socket.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/aggregator"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/connector"
	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/framing"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/ipc"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/observability"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/router"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/runtimestate"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/uibridge"
)

// DefaultGraceDelay is the pause after a stop command before shutdown
// begins, letting the control response flush to its caller.
const DefaultGraceDelay = 100 * time.Millisecond

// Metrics is the subset of the observability provider the gateway records
// to. A nil provider falls back to a noop.
type Metrics interface {
	RecordIncomingRequest(ctx context.Context, method, status string, duration time.Duration)
	RecordToolCall(ctx context.Context, tool, status string, duration time.Duration)
	RecordFrameOverflow(ctx context.Context)
	RecordBackendHealth(ctx context.Context, connector string, healthy bool)
	RecordReload(ctx context.Context, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordIncomingRequest(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordToolCall(context.Context, string, string, time.Duration)       {}
func (noopMetrics) RecordFrameOverflow(context.Context)                                 {}
func (noopMetrics) RecordBackendHealth(context.Context, string, bool)                   {}
func (noopMetrics) RecordReload(context.Context, string)                                {}

// enginePair is the immutable (aggregator, router) pair the primary channel
// reads through. Hot reload swaps the whole pair atomically: in-flight calls
// complete against the pair they started with, new calls observe the new
// one, and no reader ever sees a half-updated pair.
type enginePair struct {
	agg    *aggregator.Aggregator
	router *router.Router
}

// Gateway is the protocol gateway orchestrator.
type Gateway struct {
	name    string
	version string

	loader  connector.Loader
	factory connector.ClientFactory

	logger     logging.Logger
	capture    *logging.CaptureBuffer
	state      *runtimestate.Manager
	correlator *uibridge.Correlator
	metrics    Metrics
	tracing    *observability.TracingProvider

	bufferLimit int
	graceDelay  time.Duration
	configDir   string

	engine   atomic.Pointer[enginePair]
	reloadMu sync.Mutex
	// connectors is the full configuration last loaded, including disabled
	// entries, so reload diffs see enable-flag flips.
	connectors []connector.Connector

	handlers      map[string]requestHandler
	notifications map[string]notificationHandler

	stateMu     sync.Mutex
	initialized bool
	clientName  string

	writeMu sync.Mutex
	out     io.Writer

	ipcServer *ipc.Server

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Gateway
type Option func(*Gateway)

// WithName sets the gateway's reported server name
func WithName(name string) Option {
	return func(g *Gateway) { g.name = name }
}

// WithVersion sets the gateway's reported version
func WithVersion(version string) Option {
	return func(g *Gateway) { g.version = version }
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithCaptureBuffer sets the log capture buffer exposed over status
func WithCaptureBuffer(capture *logging.CaptureBuffer) Option {
	return func(g *Gateway) { g.capture = capture }
}

// WithAuditSink sets the audit sink for UI bridge token records
func WithAuditSink(sink uibridge.AuditSink) Option {
	return func(g *Gateway) {
		g.correlator = uibridge.NewCorrelator(uibridge.WithAuditSink(sink))
	}
}

// WithMetrics sets the metrics provider
func WithMetrics(metrics Metrics) Option {
	return func(g *Gateway) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// WithTracing sets the tracing provider
func WithTracing(tracing *observability.TracingProvider) Option {
	return func(g *Gateway) { g.tracing = tracing }
}

// WithBufferLimit overrides the primary-channel frame buffer cap
func WithBufferLimit(limit int) Option {
	return func(g *Gateway) { g.bufferLimit = limit }
}

// WithGraceDelay overrides the stop grace delay
func WithGraceDelay(delay time.Duration) Option {
	return func(g *Gateway) {
		if delay >= 0 {
			g.graceDelay = delay
		}
	}
}

// WithConfigDir enables the control channel on the socket derived from the
// given configuration directory.
func WithConfigDir(dir string) Option {
	return func(g *Gateway) { g.configDir = dir }
}

// WithRuntimeState sets the runtime state manager
func WithRuntimeState(state *runtimestate.Manager) Option {
	return func(g *Gateway) { g.state = state }
}

// New creates a Gateway. No backend is contacted until Start.
func New(loader connector.Loader, factory connector.ClientFactory, opts ...Option) *Gateway {
	g := &Gateway{
		name:        "mcp-gateway",
		version:     "1.0.0",
		loader:      loader,
		factory:     factory,
		logger:      logging.New(nil, nil),
		bufferLimit: framing.DefaultBufferLimit,
		graceDelay:  DefaultGraceDelay,
		metrics:     noopMetrics{},
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.state == nil {
		g.state = runtimestate.NewManager(runtimestate.WithLogger(g.logger))
	}
	if g.correlator == nil {
		g.correlator = uibridge.NewCorrelator(uibridge.WithLogger(g.logger))
	}

	g.registerHandlers()
	return g
}

// Start loads the connector configuration, discovers every enabled backend,
// seeds runtime state, and brings up the heartbeat and control channel.
// Only a failure to load the initial configuration or bind the control
// socket is fatal; individual backend failures are tolerated.
func (g *Gateway) Start(ctx context.Context) error {
	connectors, err := g.loader.Load(ctx)
	if err != nil {
		return gwerrors.Wrap(err, protocol.ServerInitError, gwerrors.CategoryInternal, "initial configuration load failed")
	}
	for _, c := range connectors {
		if err := c.Validate(); err != nil {
			return gwerrors.Wrap(err, protocol.ServerInitError, gwerrors.CategoryInternal, "invalid connector configuration")
		}
	}
	g.connectors = connectors

	pair := g.buildEngine(connectors)
	if err := pair.agg.Preload(ctx); err != nil {
		return gwerrors.Wrap(err, protocol.ServerInitError, gwerrors.CategoryInternal, "initial preload interrupted")
	}
	g.engine.Store(pair)

	g.state.Initialize(connectorStatuses(pair.agg), g.logger.GetLevel().String())
	g.publishBackendHealth(ctx, pair.agg)
	if g.capture != nil {
		g.capture.Observe(g.state.RecordLogLines)
	}
	g.state.StartHeartbeat()

	if g.configDir != "" {
		g.ipcServer = ipc.NewServer(ipc.SocketPath(g.configDir), ipc.Handlers{
			Reload: g.Reload,
			Stop:   g.requestStop,
			Status: g.statusPayload,
		}, ipc.WithServerLogger(g.logger))
		if err := g.ipcServer.Start(); err != nil {
			g.state.StopHeartbeat()
			return err
		}
	}

	g.logger.Info("gateway started",
		logging.String("name", g.name),
		logging.Int("connectors", len(connector.Enabled(connectors))))
	return nil
}

func (g *Gateway) buildEngine(connectors []connector.Connector) *enginePair {
	agg := aggregator.New(connectors, g.factory, aggregator.WithLogger(g.logger))
	rt := router.New(agg, router.WithLogger(g.logger), router.WithMetrics(g.metrics))
	return &enginePair{agg: agg, router: rt}
}

// Serve runs the primary channel until the reader is exhausted, the context
// is cancelled, or the gateway is stopped. Inbound messages are processed
// in arrival order on this goroutine; handlers may fan out internally.
func (g *Gateway) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	g.writeMu.Lock()
	g.out = w
	g.writeMu.Unlock()

	frame := framing.NewReader(g.bufferLimit)
	group, gctx := errgroup.WithContext(ctx)
	readDone := make(chan struct{})

	group.Go(func() error {
		defer close(readDone)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				lines, ferr := frame.Feed(buf[:n])
				for _, line := range lines {
					g.dispatchLine(gctx, line)
				}
				if ferr != nil {
					g.handleOverflow(gctx, ferr)
				}
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				case <-g.stopCh:
					return nil
				default:
				}
				return gwerrors.Wrap(err, protocol.InternalError, gwerrors.CategoryInternal, "primary channel read failed")
			}
		}
	})

	group.Go(func() error {
		select {
		case <-gctx.Done():
		case <-g.stopCh:
		case <-readDone:
			return nil
		}
		if closer, ok := r.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil
	})

	err := group.Wait()
	g.detachClient()
	return err
}

// handleOverflow reports one buffer overflow reset on the primary channel.
// The condition is non-fatal: the loop continues with an empty buffer.
func (g *Gateway) handleOverflow(ctx context.Context, cause error) {
	g.metrics.RecordFrameOverflow(ctx)
	g.logger.Warn("frame buffer overflow, resetting", logging.ErrorField(cause))
	g.writeError(nil, gwerrors.BufferOverflow(g.bufferLimit))
}

// detachClient marks the connected client gone once the primary channel
// closes.
func (g *Gateway) detachClient() {
	g.stateMu.Lock()
	name := g.clientName
	g.stateMu.Unlock()
	if name == "" {
		return
	}
	gone := runtimestate.ClientGone
	g.state.UpdateClient(name, runtimestate.ClientPatch{State: &gone})
}

// requestStop is the control channel's stop handler. The actual shutdown
// runs after a grace delay on its own goroutine so the control response can
// flush first.
func (g *Gateway) requestStop() {
	go func() {
		time.Sleep(g.graceDelay)
		_ = g.Shutdown(context.Background())
	}()
}

// Shutdown stops the gateway: heartbeat, control socket, runtime state,
// then the primary channel. Shutdown-path errors are swallowed; the first
// call wins and later calls are no-ops.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.stopOnce.Do(func() {
		g.logger.Info("gateway stopping")
		g.state.StopHeartbeat()
		if g.ipcServer != nil {
			_ = g.ipcServer.Close()
		}
		g.state.MarkStopped()
		close(g.stopCh)
		if g.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_ = g.tracing.Shutdown(shutdownCtx)
			cancel()
		}
	})
	return nil
}

// statusPayload answers the control channel's status command.
func (g *Gateway) statusPayload() ipc.StatusPayload {
	payload := ipc.StatusPayload{Snapshot: g.state.Snapshot()}
	if g.capture != nil {
		payload.RecentLog = g.capture.Recent(20)
	}
	return payload
}

// publishBackendHealth mirrors per-connector health into metrics.
func (g *Gateway) publishBackendHealth(ctx context.Context, agg *aggregator.Aggregator) {
	for _, summary := range agg.Summaries() {
		g.metrics.RecordBackendHealth(ctx, summary.ID, summary.Healthy)
	}
}

func connectorStatuses(agg *aggregator.Aggregator) []runtimestate.ConnectorStatus {
	summaries := agg.Summaries()
	out := make([]runtimestate.ConnectorStatus, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, runtimestate.ConnectorStatus{
			ID:        s.ID,
			ToolCount: s.ToolCount,
			Healthy:   s.Healthy,
			Error:     s.Error,
		})
	}
	return out
}

// writeMessage writes one marshaled message line to the primary channel.
func (g *Gateway) writeMessage(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("response marshal failed", logging.ErrorField(err))
		return
	}
	data = append(data, '\n')

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.out == nil {
		return
	}
	if _, err := g.out.Write(data); err != nil {
		g.logger.Warn("response write failed", logging.ErrorField(err))
	}
}
