// Package connector defines the backend connector model: the descriptor a
// configuration supplies for each downstream tool provider, the transport
// client capability the gateway consumes, and the collaborator interfaces
// (loader, client factory) whose implementations live outside this module.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
)

// TransportKind identifies how a backend is reached
type TransportKind string

const (
	// TransportStdio runs the backend as a subprocess speaking stdio
	TransportStdio TransportKind = "stdio"
	// TransportHTTP reaches the backend at an HTTP endpoint
	TransportHTTP TransportKind = "http"
	// TransportSSE reaches the backend at an SSE endpoint
	TransportSSE TransportKind = "sse"
)

// TransportSpec describes one backend's transport. Exactly one of the
// subprocess fields or the URL is meaningful, selected by Kind.
type TransportSpec struct {
	Kind TransportKind `json:"kind"`

	// Subprocess transports
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// URL-based transports
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Connector is one configured downstream tool provider. Connectors are
// replaced wholesale on reload, never mutated in place.
type Connector struct {
	ID        string        `json:"id"`
	Enabled   bool          `json:"enabled"`
	Transport TransportSpec `json:"transport"`
}

// Validate checks the descriptor for the invariants every consumer assumes.
func (c Connector) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("connector id must not be empty")
	}
	switch c.Transport.Kind {
	case TransportStdio:
		if c.Transport.Command == "" {
			return fmt.Errorf("connector %q: stdio transport requires a command", c.ID)
		}
	case TransportHTTP, TransportSSE:
		if c.Transport.URL == "" {
			return fmt.Errorf("connector %q: %s transport requires a url", c.ID, c.Transport.Kind)
		}
	default:
		return fmt.Errorf("connector %q: unknown transport kind %q", c.ID, c.Transport.Kind)
	}
	return nil
}

// TransportClient is the capability one backend exposes to the gateway.
// Implementations (subprocess pipes, HTTP, SSE) live outside this module.
type TransportClient interface {
	// DiscoverTools returns the backend's tool catalog.
	DiscoverTools(ctx context.Context) ([]protocol.Tool, error)

	// CallTool invokes one tool by its backend-local name. A non-nil result
	// with IsError set means the call executed and the backend flagged its
	// own result as an application error; a returned error means the call
	// could not be executed at all.
	CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error)
}

// ClientFactory builds a transport client for a connector. The gateway holds
// one client per enabled connector and rebuilds them on reload.
type ClientFactory interface {
	NewClient(c Connector) (TransportClient, error)
}

// Loader supplies the connector list consumed at startup and re-read on
// reload.
type Loader interface {
	Load(ctx context.Context) ([]Connector, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context) ([]Connector, error)

// Load implements Loader
func (f LoaderFunc) Load(ctx context.Context) ([]Connector, error) {
	return f(ctx)
}

// Enabled filters a connector list down to the enabled entries.
func Enabled(list []Connector) []Connector {
	out := make([]Connector, 0, len(list))
	for _, c := range list {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Diff is the by-id comparison of two connector sets
type Diff struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether the diff contains no changes
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Union returns every changed connector id, sorted.
func (d Diff) Union() []string {
	union := make([]string, 0, len(d.Added)+len(d.Removed)+len(d.Modified))
	union = append(union, d.Added...)
	union = append(union, d.Removed...)
	union = append(union, d.Modified...)
	sort.Strings(union)
	return union
}

// Compare diffs two connector sets by id. Connectors present in both sets
// are compared deeply; any definitional change marks the id as modified.
func Compare(current, next []Connector) Diff {
	currentByID := make(map[string]Connector, len(current))
	for _, c := range current {
		currentByID[c.ID] = c
	}
	nextByID := make(map[string]Connector, len(next))
	for _, c := range next {
		nextByID[c.ID] = c
	}

	var d Diff
	for id, c := range nextByID {
		old, ok := currentByID[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case !reflect.DeepEqual(old, c):
			d.Modified = append(d.Modified, id)
		}
	}
	for id := range currentByID {
		if _, ok := nextByID[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Modified)
	return d
}
