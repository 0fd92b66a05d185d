package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/runtimestate"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/utils"
)

func testSocket(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), SocketName)
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("/etc/gateway")
	want := filepath.Join("/etc/gateway", "gateway.sock")
	if got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Reload: func(ctx context.Context) ReloadResult {
			return ReloadResult{
				Success:            true,
				ReloadedConnectors: []string{"files", "search"},
				FailedConnectors:   []string{},
			}
		},
	})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	result, err := client.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"files", "search"}, result.ReloadedConnectors)
}

func TestStatusRoundTrip(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Status: func() StatusPayload {
			return StatusPayload{
				Snapshot: runtimestate.Snapshot{
					Clients: map[string]runtimestate.ClientRecord{
						"claude": {State: runtimestate.ClientActive, ToolCallCount: 3},
					},
					Connectors: []runtimestate.ConnectorStatus{
						{ID: "files", ToolCount: 2, Healthy: true},
					},
					LogLevel: "info",
				},
				RecentLog: []string{"line one\n", "line two\n"},
			}
		},
	})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status.Clients["claude"].ToolCallCount)
	assert.Equal(t, "files", status.Connectors[0].ID)
	assert.Len(t, status.RecentLog, 2)
}

func TestStopInvokesHandlerAfterResponse(t *testing.T) {
	path := testSocket(t)
	var stopped atomic.Bool
	server := NewServer(path, Handlers{
		Stop: func() { stopped.Store(true) },
	})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	require.NoError(t, client.Stop(context.Background()))

	assert.Eventually(t, stopped.Load, time.Second, 10*time.Millisecond)
}

func TestStopToleratesServerExit(t *testing.T) {
	// A server that closes the connection right after (or instead of) the
	// response still counts as a successful stop.
	path := testSocket(t)
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		// Read the request, then hang up without replying.
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		conn.Close()
	}()

	client := NewClient(path, WithTimeout(time.Second))
	assert.NoError(t, client.Stop(context.Background()))
}

func TestUnsupportedCommandReturnsError(t *testing.T) {
	path := testSocket(t)
	// No handlers registered at all.
	server := NewServer(path, Handlers{})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	_, err := client.Reload(context.Background())
	assert.Error(t, err)

	_, err = client.Status(context.Background())
	assert.Error(t, err)
}

func TestHandlerPanicReportedToCaller(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Reload: func(ctx context.Context) ReloadResult { panic("boom") },
	})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	_, err := client.Reload(context.Background())
	require.Error(t, err)

	// The server survives the panic and keeps serving.
	_, err = client.Reload(context.Background())
	require.Error(t, err)
}

func TestClientTimeout(t *testing.T) {
	path := testSocket(t)
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	// Accept and hold the connection open without ever responding.
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	client := NewClient(path, WithTimeout(100*time.Millisecond))
	start := time.Now()
	_, err = client.Status(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "timeout did not bound the round trip")
}

func TestDialMissingSocketFails(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"), WithTimeout(100*time.Millisecond))

	_, err := client.Status(context.Background())
	assert.Error(t, err)

	// Stop must NOT treat a failed dial as success: nothing was asked to stop.
	err = client.Stop(context.Background())
	assert.Error(t, err)
}

func TestServerReplacesStaleSocket(t *testing.T) {
	path := testSocket(t)
	// Simulate a crashed predecessor's leftover socket file.
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	server := NewServer(path, Handlers{
		Status: func() StatusPayload { return StatusPayload{} },
	})
	require.NoError(t, server.Start())
	defer server.Close()

	client := NewClient(path)
	_, err := client.Status(context.Background())
	assert.NoError(t, err)
}

func TestCloseRemovesSocketAndStopsGoroutines(t *testing.T) {
	leak := utils.NewGoroutineLeakDetector(t)
	leak.Start()

	path := testSocket(t)
	server := NewServer(path, Handlers{
		Status: func() StatusPayload { return StatusPayload{} },
	})
	require.NoError(t, server.Start())
	require.NoError(t, server.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file left behind after Close")

	leak.Check()
}

func TestCloseNotBlockedBySilentConnection(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Status: func() StatusPayload { return StatusPayload{} },
	})
	require.NoError(t, server.Start())

	// Connect and send nothing: the server must not wait out this
	// connection when closing.
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	closed := make(chan error, 1)
	go func() { closed <- server.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a silent control connection")
	}
}

func TestSilentConnectionDoesNotStarveServer(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Status: func() StatusPayload { return StatusPayload{} },
	})
	require.NoError(t, server.Start())
	defer server.Close()

	// One silent caller must not keep the server from serving everyone
	// else; the per-connection deadline reclaims it eventually.
	silent, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer silent.Close()

	client := NewClient(path, WithTimeout(time.Second))
	_, err = client.Status(context.Background())
	assert.NoError(t, err)
}

func TestConcurrentControlCalls(t *testing.T) {
	path := testSocket(t)
	server := NewServer(path, Handlers{
		Status: func() StatusPayload { return StatusPayload{} },
	})
	require.NoError(t, server.Start())
	defer server.Close()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			client := NewClient(path)
			_, err := client.Status(context.Background())
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
