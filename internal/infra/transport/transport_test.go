package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpbroker/internal/domain"
)

func TestNew_SelectsTransport(t *testing.T) {
	stdio, err := New(context.Background(), domain.ServerSpec{Name: "local", Cmd: []string{"echo", "hi"}, Env: map[string]string{"B": "2", "A": "1"}})
	require.NoError(t, err)
	cmd, ok := stdio.(*mcp.CommandTransport)
	require.True(t, ok)
	require.Equal(t, []string{"echo", "hi"}, cmd.Command.Args)
	require.Subset(t, cmd.Command.Env, []string{"A=1", "B=2"})

	remote, err := New(context.Background(), domain.ServerSpec{Name: "remote", Endpoint: "http://127.0.0.1:1/mcp"})
	require.NoError(t, err)
	_, ok = remote.(*mcp.StreamableClientTransport)
	require.True(t, ok)
}

func TestNew_MissingCommand(t *testing.T) {
	_, err := New(context.Background(), domain.ServerSpec{Name: "local"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "local")
}

func TestStreamableHTTP_ConnectSendsHeaders(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "remote", Version: "0.1.0"}, nil)
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	var sawToken atomic.Bool
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer secret" {
			sawToken.Store(true)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(httpServer.Close)

	transport, err := NewStreamableHTTP(domain.ServerSpec{
		Name:     "remote",
		Endpoint: httpServer.URL,
		Headers:  map[string]string{"authorization": "Bearer secret"},
	})
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(context.Background(), transport, nil)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Ping(context.Background(), nil))
	require.True(t, sawToken.Load())
}

func TestBuildHeaderTransport_RejectsEmptyKey(t *testing.T) {
	_, err := buildHeaderTransport(map[string]string{" ": "x"})
	require.Error(t, err)
}
