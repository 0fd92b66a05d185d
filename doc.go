// Package mcpgateway is the root of an MCP protocol gateway that aggregates
// the tool catalogs of multiple backend providers behind one endpoint.
//
// A gateway speaks newline-delimited JSON-RPC 2.0 on its primary channel
// (conventionally stdio, with stdout reserved for protocol traffic) and a
// small request/response protocol on a unix control socket for out-of-band
// management: hot reload, status, and stop.
//
// # Overview
//
// The gateway consists of several sub-packages:
//
//   - pkg/gateway: The orchestrator; owns the primary channel, the handler
//     table, and the hot reload coordinator
//   - pkg/protocol: JSON-RPC 2.0 envelope and MCP message types
//   - pkg/framing: Newline framing with a bounded accumulation buffer
//   - pkg/connector: The backend connector model and collaborator interfaces
//   - pkg/aggregator: Concurrent tool discovery and the namespaced catalog
//   - pkg/router: Namespaced-name resolution and call forwarding
//   - pkg/uibridge: Session token sanitization and audit correlation ids
//   - pkg/runtimestate: Live state behind the control channel's status command
//   - pkg/ipc: The control channel server and client
//   - pkg/errors: Structured errors mapped to JSON-RPC error codes
//   - pkg/logging: Structured logging with a capture buffer for status display
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Running a Gateway
//
// A deployment supplies two collaborators: a connector.Loader that reads the
// connector configuration, and a connector.ClientFactory that builds a
// transport client per backend. Everything else is wired by the gateway:
//
//	g := gateway.New(loader, factory,
//	    gateway.WithName("my-gateway"),
//	    gateway.WithConfigDir(configDir),
//	)
//	if err := g.Start(ctx); err != nil {
//	    // Handle error
//	}
//	defer g.Shutdown(ctx)
//
//	// Blocks until stdin closes or the gateway is stopped.
//	g.Serve(ctx, os.Stdin, os.Stdout)
//
// # Controlling a Running Gateway
//
// The ipc package's client talks to the socket derived from the same
// configuration directory:
//
//	ctl := ipc.NewClient(ipc.SocketPath(configDir))
//	result, err := ctl.Reload(ctx)
//
// The examples directory contains a runnable gateway with an in-process
// backend and a control CLI.
package mcpgateway
