package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/runtimestate"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/uibridge"
)

// requestHandler serves one method. The returned value is marshaled into the
// response's result; a returned error becomes the response's error object.
type requestHandler func(ctx context.Context, id json.RawMessage, params json.RawMessage) (interface{}, error)

// notificationHandler serves one notification. Notifications never produce
// output on the primary channel, success or failure.
type notificationHandler func(ctx context.Context, params json.RawMessage)

func (g *Gateway) registerHandlers() {
	g.handlers = map[string]requestHandler{
		protocol.MethodInitialize:    g.handleInitialize,
		protocol.MethodUIInitialize:  g.handleUIInitialize,
		protocol.MethodListTools:     g.handleListTools,
		protocol.MethodCallTool:      g.handleCallTool,
		protocol.MethodListResources: g.handleListResources,
		protocol.MethodReadResource:  g.handleReadResource,
		protocol.MethodPing:          g.handlePing,
	}
	g.notifications = map[string]notificationHandler{
		protocol.MethodInitialized: g.handleInitialized,
		protocol.MethodCancelled:   g.handleCancelled,
	}
}

// dispatchLine processes one framed line. A request produces exactly one
// response; a notification produces none. Handler panics are converted to an
// internal error response so the loop survives.
func (g *Gateway) dispatchLine(ctx context.Context, line []byte) {
	var envelope protocol.Envelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		// Valid JSON that fails to unmarshal is a shape problem, not a
		// parse failure; the two carry distinct error codes. Either way
		// the id is unreadable, so the response carries a null id.
		if json.Valid(line) {
			g.writeError(nil, gwerrors.InvalidRequest("request must be a JSON object"))
			return
		}
		g.writeError(nil, gwerrors.ParseError(err))
		return
	}

	if envelope.JSONRPC != protocol.JSONRPCVersion {
		g.writeError(envelope.ID, gwerrors.InvalidRequest("jsonrpc must be \"2.0\""))
		return
	}

	if envelope.IsNotification() {
		g.dispatchNotification(ctx, &envelope)
		return
	}
	g.dispatchRequest(ctx, &envelope)
}

func (g *Gateway) dispatchNotification(ctx context.Context, envelope *protocol.Envelope) {
	if envelope.Method == "" {
		// Malformed, but a notification is owed no response.
		g.logger.Warn("notification without method dropped")
		return
	}
	handler, ok := g.notifications[envelope.Method]
	if !ok {
		g.logger.Debug("unknown notification ignored", logging.String("method", envelope.Method))
		return
	}
	handler(ctx, envelope.Params)
}

func (g *Gateway) dispatchRequest(ctx context.Context, envelope *protocol.Envelope) {
	if envelope.Method == "" {
		g.writeError(envelope.ID, gwerrors.InvalidRequest("method must be a non-empty string"))
		return
	}

	handler, ok := g.handlers[envelope.Method]
	if !ok {
		g.writeError(envelope.ID, gwerrors.MethodNotFound(envelope.Method))
		return
	}

	g.warnIfUninitialized(envelope.Method)

	if g.tracing != nil {
		spanCtx, methodSpan := g.tracing.StartMethodSpan(ctx, envelope.Method)
		defer methodSpan.End()
		ctx = spanCtx
	}

	start := time.Now()
	result, err := g.invoke(ctx, handler, envelope)
	elapsed := time.Since(start)

	if err != nil {
		if g.tracing != nil {
			g.tracing.RecordError(ctx, err)
		}
		g.metrics.RecordIncomingRequest(ctx, envelope.Method, "error", elapsed)
		g.writeError(envelope.ID, err)
		return
	}

	g.metrics.RecordIncomingRequest(ctx, envelope.Method, "ok", elapsed)
	g.writeResult(envelope.ID, result)
}

// invoke runs a handler with panic recovery. A panicking handler still owes
// its caller exactly one response.
func (g *Gateway) invoke(ctx context.Context, handler requestHandler, envelope *protocol.Envelope) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("handler panicked",
				logging.String("method", envelope.Method),
				logging.Any("panic", r))
			result = nil
			err = gwerrors.New(protocol.InternalError, gwerrors.CategoryInternal, "internal error")
		}
	}()
	return handler(ctx, envelope.ID, envelope.Params)
}

// warnIfUninitialized logs requests arriving before the initialize handshake.
// They are still served: strictness here breaks clients that pipeline their
// startup traffic.
func (g *Gateway) warnIfUninitialized(method string) {
	if method == protocol.MethodInitialize || method == protocol.MethodUIInitialize {
		return
	}
	g.stateMu.Lock()
	initialized := g.initialized
	g.stateMu.Unlock()
	if !initialized {
		g.logger.Warn("request before initialize", logging.String("method", method))
	}
}

func (g *Gateway) handleInitialize(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	var p protocol.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, gwerrors.InvalidParams(protocol.MethodInitialize, err)
		}
	}

	g.stateMu.Lock()
	g.initialized = true
	if p.ClientInfo.Name != "" {
		g.clientName = p.ClientInfo.Name
	}
	g.stateMu.Unlock()

	if p.ClientInfo.Name != "" {
		version := p.ProtocolVersion
		g.state.UpdateClient(p.ClientInfo.Name, runtimestate.ClientPatch{ProtocolVersion: &version})
	}

	g.logger.Info("client initialized",
		logging.String("client", p.ClientInfo.Name),
		logging.String("protocol_version", p.ProtocolVersion))

	return protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		ServerInfo:      protocol.ServerInfo{Name: g.name, Version: g.version},
		Capabilities: protocol.Capabilities{
			Tools:     &struct{}{},
			Resources: &struct{}{},
		},
	}, nil
}

func (g *Gateway) handleUIInitialize(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	return protocol.UIInitializeResult{
		ServerInfo: protocol.ServerInfo{Name: g.name, Version: g.version},
		Bridge:     true,
	}, nil
}

func (g *Gateway) handleInitialized(ctx context.Context, params json.RawMessage) {
	g.logger.Debug("client reported initialized")
}

// handleCancelled acknowledges nothing: routed calls run to completion and
// the late response is the client's to discard.
func (g *Gateway) handleCancelled(ctx context.Context, params json.RawMessage) {
	g.logger.Debug("cancellation notification ignored")
}

func (g *Gateway) handleListTools(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	tools, err := g.engine.Load().agg.AggregatedTools(ctx)
	if err != nil {
		return nil, gwerrors.Wrap(err, protocol.InternalError, gwerrors.CategoryInternal, "tool aggregation failed")
	}
	if tools == nil {
		tools = []protocol.Tool{}
	}
	return protocol.ListToolsResult{Tools: tools}, nil
}

func (g *Gateway) handleCallTool(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	var p protocol.CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, gwerrors.InvalidParams(protocol.MethodCallTool, err)
	}
	if p.Name == "" {
		return nil, gwerrors.InvalidParams(protocol.MethodCallTool, errors.New("name must be a non-empty string"))
	}

	args, token := uibridge.Sanitize(p.Arguments)
	if token != "" {
		ids := g.correlator.Generate(token, string(id), p.Name, args)
		g.correlator.RecordToken(token, ids, p.Name)
		g.logger.Debug("bridged tool call",
			logging.String("tool", p.Name),
			logging.String("correlation_id", ids.CorrelationID),
			logging.String("fingerprint", ids.Fingerprint))
	}

	g.stateMu.Lock()
	client := g.clientName
	g.stateMu.Unlock()
	g.state.RecordToolCall(client)

	if g.tracing != nil {
		spanCtx, span := g.tracing.StartToolSpan(ctx, p.Name)
		defer span.End()
		ctx = spanCtx
	}

	result, err := g.engine.Load().router.RouteToolCall(ctx, p.Name, args)
	if err != nil {
		if g.tracing != nil {
			g.tracing.RecordError(ctx, err)
		}
		return nil, err
	}
	return result, nil
}

// handleListResources serves the gateway's own resource catalog. Backends
// expose tools only, so the catalog is empty.
func (g *Gateway) handleListResources(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	return protocol.ListResourcesResult{Resources: []protocol.Resource{}}, nil
}

func (g *Gateway) handleReadResource(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	var p protocol.ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, gwerrors.InvalidParams(protocol.MethodReadResource, err)
	}
	return nil, gwerrors.New(protocol.ResourceNotFound, gwerrors.CategoryProtocol,
		"resource not found: "+p.URI)
}

func (g *Gateway) handlePing(ctx context.Context, id, params json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

// writeResult emits the single success response owed to a request.
func (g *Gateway) writeResult(id json.RawMessage, result interface{}) {
	response, err := protocol.NewResponse(id, result)
	if err != nil {
		g.logger.Error("result marshal failed", logging.ErrorField(err))
		g.writeError(id, gwerrors.New(protocol.InternalError, gwerrors.CategoryInternal, "internal error"))
		return
	}
	g.writeMessage(response)
}

// writeError emits the single error response owed to a request. Gateway
// errors surface their own code and stable message; anything else collapses
// to a generic internal error so backend details never leak verbatim.
func (g *Gateway) writeError(id json.RawMessage, err error) {
	code := protocol.InternalError
	message := "internal error"

	var gwErr gwerrors.GatewayError
	if errors.As(err, &gwErr) {
		code = gwErr.Code()
		message = gwErr.Error()
	}

	response, rerr := protocol.NewErrorResponse(id, code, message, nil)
	if rerr != nil {
		g.logger.Error("error response marshal failed", logging.ErrorField(rerr))
		return
	}
	g.writeMessage(response)
}
