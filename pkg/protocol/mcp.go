package protocol

import (
	"encoding/json"
)

// Method names served on the primary channel. The slash-separated names are
// what travels on the wire; the constants keep handler tables typo-safe.
const (
	// Lifecycle
	MethodInitialize   = "initialize"
	MethodInitialized  = "notifications/initialized"
	MethodUIInitialize = "ui/initialize"

	// Tools
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"

	// Resources
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"

	// Utilities
	MethodPing      = "ping"
	MethodCancelled = "notifications/cancelled"
)

// ProtocolVersion is the MCP revision the gateway reports at initialize.
const ProtocolVersion = "2024-11-05"

// Tool represents one entry in a backend's tool catalog. The input schema is
// opaque to the gateway and forwarded unmodified.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult defines the response for tools/list
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams defines parameters for tools/call
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult defines the response for tools/call. Content is the
// backend's content array passed through opaquely; IsError marks an
// application-level failure the backend itself reported.
type CallToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// Resource represents a resource descriptor passed through from a backend
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult defines the response for resources/list
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ReadResourceParams defines parameters for resources/read
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult defines the response for resources/read
type ReadResourceResult struct {
	Contents json.RawMessage `json:"contents"`
}

// ClientInfo identifies the connected client as reported at initialize
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo identifies the gateway in the initialize response
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams defines parameters for initialize
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
}

// Capabilities advertises which feature groups the gateway serves
type Capabilities struct {
	Tools     *struct{} `json:"tools,omitempty"`
	Resources *struct{} `json:"resources,omitempty"`
}

// InitializeResult defines the response for initialize
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// UIInitializeResult defines the response for ui/initialize. The bridge only
// needs an acknowledgement and the gateway's identity.
type UIInitializeResult struct {
	ServerInfo ServerInfo `json:"serverInfo"`
	Bridge     bool       `json:"bridge"`
}
