package mcpgateway

import (
	"github.com/ajitpratap0/mcp-gateway-go/pkg/connector"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/gateway"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/ipc"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
)

// Version represents the current version of the gateway
const Version = "1.0.0"

// These exports provide direct access to the core components
var (
	// NewGateway creates a new protocol gateway
	NewGateway = gateway.New

	// NewControlClient creates a client for a running gateway's control socket
	NewControlClient = ipc.NewClient

	// ControlSocketPath derives the control socket path from a config directory
	ControlSocketPath = ipc.SocketPath

	// NewLogger creates a structured logger
	NewLogger = logging.New
)

// Gateway options
var (
	WithName          = gateway.WithName
	WithVersion       = gateway.WithVersion
	WithLogger        = gateway.WithLogger
	WithConfigDir     = gateway.WithConfigDir
	WithAuditSink     = gateway.WithAuditSink
	WithMetrics       = gateway.WithMetrics
	WithTracing       = gateway.WithTracing
	WithBufferLimit   = gateway.WithBufferLimit
	WithCaptureBuffer = gateway.WithCaptureBuffer
)

// Connector collaborator aliases
type (
	// Connector is one configured downstream tool provider
	Connector = connector.Connector

	// Loader supplies the connector configuration
	Loader = connector.Loader

	// ClientFactory builds transport clients per connector
	ClientFactory = connector.ClientFactory
)
