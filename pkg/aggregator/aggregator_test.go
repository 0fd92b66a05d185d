package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/connector"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/protocol"
)

// fakeClient serves a fixed catalog and counts discovery calls.
type fakeClient struct {
	tools        []protocol.Tool
	discoverErr  error
	discoverHits atomic.Int32
}

func (f *fakeClient) DiscoverTools(ctx context.Context) ([]protocol.Tool, error) {
	f.discoverHits.Add(1)
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.tools, nil
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	return &protocol.CallToolResult{}, nil
}

// fakeFactory hands out pre-built clients by connector id.
type fakeFactory struct {
	clients    map[string]*fakeClient
	factoryErr map[string]error
}

func (f *fakeFactory) NewClient(c connector.Connector) (connector.TransportClient, error) {
	if err := f.factoryErr[c.ID]; err != nil {
		return nil, err
	}
	client, ok := f.clients[c.ID]
	if !ok {
		return nil, errors.New("no fake for " + c.ID)
	}
	return client, nil
}

func stdioConnector(id string, enabled bool) connector.Connector {
	return connector.Connector{
		ID:      id,
		Enabled: enabled,
		Transport: connector.TransportSpec{
			Kind:    connector.TransportStdio,
			Command: "server-" + id,
		},
	}
}

func tools(names ...string) []protocol.Tool {
	out := make([]protocol.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, protocol.Tool{Name: n})
	}
	return out
}

func TestPreloadNamespacesTools(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"files":  {tools: tools("read", "write")},
		"search": {tools: tools("query")},
	}}
	agg := New([]connector.Connector{
		stdioConnector("search", true),
		stdioConnector("files", true),
	}, factory)

	require.NoError(t, agg.Preload(context.Background()))

	list, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name)
	}
	// Connectors compose in id order regardless of config order.
	assert.Equal(t, []string{"files__read", "files__write", "search__query"}, names)
}

func TestResolveReversesNamespacing(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"files": {tools: tools("read")},
	}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)
	require.NoError(t, agg.Preload(context.Background()))

	target, client, ok := agg.Resolve("files__read")
	require.True(t, ok)
	assert.Equal(t, "files", target.ConnectorID)
	assert.Equal(t, "read", target.ToolName)
	assert.NotNil(t, client)

	_, _, ok = agg.Resolve("files__missing")
	assert.False(t, ok)
}

func TestSameToolNameInTwoBackends(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"github": {tools: tools("search")},
		"jira":   {tools: tools("search")},
	}}
	agg := New([]connector.Connector{
		stdioConnector("github", true),
		stdioConnector("jira", true),
	}, factory)
	require.NoError(t, agg.Preload(context.Background()))

	ghTarget, _, ok := agg.Resolve("github__search")
	require.True(t, ok)
	jiraTarget, _, ok := agg.Resolve("jira__search")
	require.True(t, ok)

	assert.Equal(t, "github", ghTarget.ConnectorID)
	assert.Equal(t, "jira", jiraTarget.ConnectorID)
	assert.Equal(t, "search", ghTarget.ToolName)
	assert.Equal(t, "search", jiraTarget.ToolName)
}

func TestResolveSeparatorInToolName(t *testing.T) {
	// A tool whose own name contains the separator must still round-trip,
	// because resolution never parses the namespaced string.
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"files": {tools: tools("deep__read")},
	}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)
	require.NoError(t, agg.Preload(context.Background()))

	target, _, ok := agg.Resolve("files__deep__read")
	require.True(t, ok)
	assert.Equal(t, "deep__read", target.ToolName)
}

func TestNamespacedNameCollisionSuffix(t *testing.T) {
	// Two distinct backend tools that namespace to the same string get
	// deterministic numeric suffixes instead of silently shadowing.
	// Connector "a" exposes tool "b__x" and connector "a__b" exposes "x";
	// both namespace to "a__b__x".
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"a":    {tools: tools("b__x")},
		"a__b": {tools: tools("x")},
	}}
	conns := []connector.Connector{stdioConnector("a", true), stdioConnector("a__b", true)}
	agg := New(conns, factory)
	require.NoError(t, agg.Preload(context.Background()))

	list, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	seen := map[string]bool{}
	for _, tool := range list {
		assert.False(t, seen[tool.Name], "duplicate namespaced name %q", tool.Name)
		seen[tool.Name] = true

		// Every namespaced name must still resolve to exactly one target.
		_, _, ok := agg.Resolve(tool.Name)
		assert.True(t, ok, "unresolvable name %q", tool.Name)
	}
}

func TestPreloadFailureIsolation(t *testing.T) {
	factory := &fakeFactory{
		clients: map[string]*fakeClient{
			"good": {tools: tools("query")},
			"bad":  {discoverErr: errors.New("connection refused")},
		},
	}
	agg := New([]connector.Connector{
		stdioConnector("good", true),
		stdioConnector("bad", true),
	}, factory)

	require.NoError(t, agg.Preload(context.Background()), "one failing backend must not abort preload")

	list, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good__query", list[0].Name)

	summaries := agg.Summaries()
	require.Len(t, summaries, 2)
	assert.False(t, summaries[0].Healthy, "bad connector reported healthy")
	assert.NotEmpty(t, summaries[0].Error)
	assert.True(t, summaries[1].Healthy)
	assert.Equal(t, 1, summaries[1].ToolCount)
}

func TestPreloadFactoryFailureIsolation(t *testing.T) {
	factory := &fakeFactory{
		clients:    map[string]*fakeClient{"good": {tools: tools("query")}},
		factoryErr: map[string]error{"bad": errors.New("spawn failed")},
	}
	agg := New([]connector.Connector{
		stdioConnector("good", true),
		stdioConnector("bad", true),
	}, factory)

	require.NoError(t, agg.Preload(context.Background()))

	summaries := agg.Summaries()
	require.Len(t, summaries, 2)
	assert.False(t, summaries[0].Healthy)
}

func TestDisabledConnectorsExcluded(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"on": {tools: tools("a")},
		// No fake for "off": touching it would fail the test via factory error.
	}}
	agg := New([]connector.Connector{
		stdioConnector("on", true),
		stdioConnector("off", false),
	}, factory)

	require.NoError(t, agg.Preload(context.Background()))

	list, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	summaries := agg.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "on", summaries[0].ID)
}

func TestAggregatedToolsMemoized(t *testing.T) {
	client := &fakeClient{tools: tools("read")}
	factory := &fakeFactory{clients: map[string]*fakeClient{"files": client}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)

	for i := 0; i < 3; i++ {
		_, err := agg.AggregatedTools(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), client.discoverHits.Load(), "catalog must be served from cache")
}

func TestInvalidateCacheForcesRediscovery(t *testing.T) {
	client := &fakeClient{tools: tools("read")}
	factory := &fakeFactory{clients: map[string]*fakeClient{"files": client}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)

	_, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)

	agg.InvalidateCache()

	_, err = agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), client.discoverHits.Load())
}

func TestPreloadContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := &fakeFactory{clients: map[string]*fakeClient{"files": {tools: tools("read")}}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)

	err := agg.Preload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregatedToolsReturnsCopy(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{"files": {tools: tools("read")}}}
	agg := New([]connector.Connector{stdioConnector("files", true)}, factory)

	first, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := agg.AggregatedTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "files__read", second[0].Name, "caller mutation leaked into the cache")
}
