// Package ipc implements the control channel: a newline-delimited JSON
// request/response protocol over a local socket, used to manage a running
// gateway out-of-band. Each message carries a per-connection correlation id;
// every request on a connection is answered by exactly one response with the
// same id.
package ipc

import (
	"path/filepath"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/runtimestate"
)

// Kind distinguishes the two message directions
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// CommandType enumerates the control commands
type CommandType string

const (
	CommandReload CommandType = "reload"
	CommandStop   CommandType = "stop"
	CommandStatus CommandType = "status"
)

// Command is the request payload
type Command struct {
	Type CommandType `json:"type"`
}

// ResponseType enumerates the response payloads
type ResponseType string

const (
	ResponseOK     ResponseType = "ok"
	ResponseStatus ResponseType = "status"
	ResponseError  ResponseType = "error"
)

// Response is the response payload
type Response struct {
	Type    ResponseType   `json:"type"`
	Message string         `json:"message,omitempty"`
	Reload  *ReloadResult  `json:"reload,omitempty"`
	Status  *StatusPayload `json:"status,omitempty"`
}

// Message is one line on the wire
type Message struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Command  *Command  `json:"command,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// ReloadResult reports the outcome of a hot reload
type ReloadResult struct {
	Success            bool     `json:"success"`
	ReloadedConnectors []string `json:"reloadedConnectors"`
	FailedConnectors   []string `json:"failedConnectors"`
	Message            string   `json:"message,omitempty"`
}

// StatusPayload is the status response: the runtime snapshot plus the tail
// of the logging capture buffer for external display.
type StatusPayload struct {
	runtimestate.Snapshot
	RecentLog []string `json:"recentLog,omitempty"`
}

// SocketName is the fixed socket file name inside a configuration directory.
const SocketName = "gateway.sock"

// SocketPath derives the control socket path from a configuration
// directory: one fixed name per directory, so any client pointed at the
// same directory finds the same gateway.
func SocketPath(configDir string) string {
	return filepath.Join(configDir, SocketName)
}
