// Package errors provides structured error handling for the gateway.
// It defines custom error types that map to JSON-RPC error codes and carry
// enough context to report failures to the right channel: the primary
// channel, the control channel, or only the log.
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
)

// Category classifies an error by the taxonomy the gateway's error design
// follows: each category has a fixed reporting path.
type Category string

const (
	CategoryFraming  Category = "framing"
	CategoryProtocol Category = "protocol"
	CategoryRouting  Category = "routing"
	CategoryBackend  Category = "backend"
	CategoryControl  Category = "control"
	CategoryReload   Category = "reload"
	CategoryInternal Category = "internal"
)

// Context provides additional context about where an error occurred
type Context struct {
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Connector string    `json:"connector,omitempty"`
	Method    string    `json:"method,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GatewayError is the interface implemented by all gateway errors
type GatewayError interface {
	error

	// Code returns the JSON-RPC error code to report on the primary channel
	Code() protocol.ErrorCode

	// Message returns the stable, client-visible message
	Message() string

	// Category returns the error category for classification
	Category() Category

	// Context returns the error context, or nil
	Context() *Context

	// WithContext returns a copy of the error carrying the given context
	WithContext(ctx *Context) GatewayError

	// WithDetail returns a copy of the error with additional detail appended
	WithDetail(detail string) GatewayError

	// Unwrap returns the underlying cause for errors.Is/As traversal
	Unwrap() error
}

type baseError struct {
	code     protocol.ErrorCode
	message  string
	detail   string
	category Category
	context  *Context
	cause    error
}

func (e *baseError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.message, e.detail)
	}
	return e.message
}

func (e *baseError) Code() protocol.ErrorCode { return e.code }
func (e *baseError) Message() string          { return e.message }
func (e *baseError) Category() Category       { return e.category }
func (e *baseError) Context() *Context        { return e.context }
func (e *baseError) Unwrap() error            { return e.cause }

func (e *baseError) WithContext(ctx *Context) GatewayError {
	clone := *e
	if ctx != nil && ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now()
	}
	clone.context = ctx
	return &clone
}

func (e *baseError) WithDetail(detail string) GatewayError {
	clone := *e
	if clone.detail != "" {
		clone.detail = fmt.Sprintf("%s; %s", clone.detail, detail)
	} else {
		clone.detail = detail
	}
	return &clone
}

// New creates a gateway error with an explicit code and category
func New(code protocol.ErrorCode, category Category, message string) GatewayError {
	return &baseError{code: code, message: message, category: category}
}

// Wrap creates a gateway error whose cause is preserved for errors.Is/As
func Wrap(cause error, code protocol.ErrorCode, category Category, message string) GatewayError {
	return &baseError{code: code, message: message, category: category, cause: cause}
}

// ParseError reports a line that was not valid JSON
func ParseError(cause error) GatewayError {
	return Wrap(cause, protocol.ParseError, CategoryFraming, "parse error")
}

// InvalidRequest reports a structurally invalid JSON-RPC envelope
func InvalidRequest(detail string) GatewayError {
	return New(protocol.InvalidRequest, CategoryProtocol, "invalid request").WithDetail(detail)
}

// BufferOverflow reports that the frame accumulator exceeded its cap
func BufferOverflow(limit int) GatewayError {
	return New(protocol.InvalidRequest, CategoryFraming, "message exceeds frame buffer limit").
		WithDetail(fmt.Sprintf("limit %d bytes", limit))
}

// MethodNotFound reports an unknown request method
func MethodNotFound(method string) GatewayError {
	return New(protocol.MethodNotFound, CategoryProtocol, fmt.Sprintf("method not found: %s", method))
}

// InvalidParams reports malformed or missing request parameters
func InvalidParams(method string, cause error) GatewayError {
	return Wrap(cause, protocol.InvalidParams, CategoryProtocol, fmt.Sprintf("invalid params for %s", method))
}

// ErrNotRoutable is the sentinel matched by errors.Is to distinguish an
// unresolvable tool name from a backend execution failure.
var ErrNotRoutable = errors.New("tool not routable")

// NotRoutable reports a namespaced tool name that resolves to no backend.
// This is a data-level routing failure inside a well-formed tools/call,
// never a protocol-level method-not-found.
func NotRoutable(name string) GatewayError {
	return Wrap(ErrNotRoutable, protocol.ToolRoutingError, CategoryRouting,
		fmt.Sprintf("no aggregated tool named %q", name))
}

// BackendFailure reports that a resolved backend could not execute a call
func BackendFailure(connector string, cause error) GatewayError {
	return Wrap(cause, protocol.BackendError, CategoryBackend,
		fmt.Sprintf("backend %q call failed", connector))
}

// DiscoveryFailure reports that a backend's tool catalog could not be read
func DiscoveryFailure(connector string, cause error) GatewayError {
	return Wrap(cause, protocol.BackendError, CategoryBackend,
		fmt.Sprintf("backend %q discovery failed", connector)).
		WithContext(&Context{Component: "aggregator", Operation: "preload", Connector: connector})
}

// ControlError reports a control-channel failure, visible only to the IPC caller
func ControlError(operation string, cause error) GatewayError {
	return Wrap(cause, protocol.InternalError, CategoryControl,
		fmt.Sprintf("control channel %s failed", operation))
}

// ReloadFailure reports a reload attempt that left the previous state in force
func ReloadFailure(cause error) GatewayError {
	return Wrap(cause, protocol.InternalError, CategoryReload, "reload failed")
}
