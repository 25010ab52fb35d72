package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
)

type testTool struct {
	name        string
	description string
	handler     mcp.ToolHandler
}

func echoHandler(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: args.Text}}}, nil
}

func failingHandler(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "disk full"}}}, nil
}

func newTestServer(name string, tools ...testTool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "0.1.0"}, nil)
	for _, tool := range tools {
		handler := tool.handler
		if handler == nil {
			handler = echoHandler
		}
		server.AddTool(&mcp.Tool{
			Name:        tool.name,
			Description: tool.description,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
		}, handler)
	}
	return server
}

// inMemoryDialer connects each configured server name to an in-process MCP server.
func inMemoryDialer(t *testing.T, servers map[string]*mcp.Server) Dialer {
	t.Helper()
	return func(ctx context.Context, spec domain.ServerSpec) (mcp.Transport, error) {
		server, ok := servers[spec.Name]
		if !ok {
			return nil, errors.New("unreachable")
		}
		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		return clientTransport, nil
	}
}

func connectRegistry(t *testing.T, servers map[string]*mcp.Server, specs []domain.ServerSpec) *MCPRegistry {
	t.Helper()
	reg := NewMCPRegistry(MCPOptions{Logger: zap.NewNop(), Dialer: inMemoryDialer(t, servers)})
	require.NoError(t, reg.Connect(context.Background(), specs))
	t.Cleanup(func() {
		_ = reg.Close()
	})
	return reg
}

func TestMCPRegistry_ListToolsFollowsServerOrder(t *testing.T) {
	servers := map[string]*mcp.Server{
		"ns1": newTestServer("ns1", testTool{name: "echo", description: "first echo"}),
		"ns2": newTestServer("ns2", testTool{name: "echo", description: "second echo"}, testTool{name: "add"}),
	}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "ns1"}, {Name: "ns2"}})

	keys, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, domain.ToolKey{Namespace: "ns1", Name: "echo"}, keys[0])
	require.ElementsMatch(t, []domain.ToolKey{{Namespace: "ns2", Name: "echo"}, {Namespace: "ns2", Name: "add"}}, keys[1:])

	md, ok, err := reg.GetMetadata(context.Background(), "echo", "ns2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second echo", md.Description)
	require.True(t, md.IsAsync)
	require.Equal(t, "object", md.ArgumentSchema["type"])

	_, ok, err = reg.GetMetadata(context.Background(), "missing", "ns1")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = reg.GetMetadata(context.Background(), "echo", "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMCPRegistry_ExposeToolsAllowList(t *testing.T) {
	servers := map[string]*mcp.Server{
		"ns1": newTestServer("ns1", testTool{name: "echo"}, testTool{name: "secret"}),
	}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "ns1", ExposeTools: []string{"echo"}}})

	keys, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{{Namespace: "ns1", Name: "echo"}}, keys)

	_, err = reg.CallTool(context.Background(), domain.ToolKey{Namespace: "ns1", Name: "secret"}, nil)
	require.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestMCPRegistry_CallTool(t *testing.T) {
	servers := map[string]*mcp.Server{
		"ns1": newTestServer("ns1", testTool{name: "echo"}, testTool{name: "fail", handler: failingHandler}),
	}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "ns1"}})

	result, err := reg.CallTool(context.Background(), domain.ToolKey{Namespace: "ns1", Name: "echo"}, map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "echo", result.ToolName)
	require.Equal(t, "ns1", result.Namespace)
	records, ok := result.Result.([]map[string]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	require.Equal(t, "hello", records[0]["text"])

	result, err = reg.CallTool(context.Background(), domain.ToolKey{Namespace: "ns1", Name: "fail"}, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "disk full", result.Error)

	_, err = reg.CallTool(context.Background(), domain.ToolKey{Namespace: "ns9", Name: "echo"}, nil)
	require.ErrorIs(t, err, domain.ErrNamespaceNotFound)
}

func TestMCPRegistry_PartialConnectKeepsFailedServer(t *testing.T) {
	servers := map[string]*mcp.Server{
		"ns1": newTestServer("ns1", testTool{name: "echo"}),
	}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "down"}, {Name: "ns1"}})

	keys, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{{Namespace: "ns1", Name: "echo"}}, keys)

	status := reg.Servers()
	require.Len(t, status, 2)
	require.Equal(t, "down", status[0].Name)
	require.Equal(t, StatusError, status[0].Status)
	require.Contains(t, status[0].Error, "unreachable")
	require.Equal(t, domain.NamespaceInfo{Name: "ns1", ToolCount: 1, Status: StatusConnected}, status[1])

	_, err = reg.CallTool(context.Background(), domain.ToolKey{Namespace: "down", Name: "echo"}, nil)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestMCPRegistry_ConnectFailsWhenNothingReachable(t *testing.T) {
	reg := NewMCPRegistry(MCPOptions{Dialer: inMemoryDialer(t, nil)})
	err := reg.Connect(context.Background(), []domain.ServerSpec{{Name: "a"}, {Name: "b"}})
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestMCPRegistry_PingKeepsConnectedStatus(t *testing.T) {
	servers := map[string]*mcp.Server{"ns1": newTestServer("ns1", testTool{name: "echo"})}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "ns1"}})

	reg.Ping(context.Background())
	require.Equal(t, StatusConnected, reg.Servers()[0].Status)
}

func TestMCPRegistry_ClosedRegistry(t *testing.T) {
	servers := map[string]*mcp.Server{"ns1": newTestServer("ns1", testTool{name: "echo"})}
	reg := connectRegistry(t, servers, []domain.ServerSpec{{Name: "ns1"}})
	require.NoError(t, reg.Close())

	_, err := reg.ListTools(context.Background())
	require.ErrorIs(t, err, domain.ErrRegistryClosed)
}

func TestSnapshotRegistry(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		ETag: "etag-1",
		Tools: []domain.ToolInfo{
			{Namespace: "ns1", Name: "echo", Description: "Echo", Parameters: map[string]any{"type": "object"}, Tags: []string{"read-only"}},
			{Namespace: "ns2", Name: "echo"},
			{Namespace: "ns2", Name: "add"},
		},
	}
	reg := NewSnapshotRegistry(snapshot)
	require.Equal(t, "etag-1", reg.ETag())

	keys, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{{Namespace: "ns1", Name: "echo"}, {Namespace: "ns2", Name: "echo"}, {Namespace: "ns2", Name: "add"}}, keys)

	md, ok, err := reg.GetMetadata(context.Background(), "echo", "ns1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Echo", md.Description)
	md.ArgumentSchema["type"] = "mutated"
	require.Equal(t, "object", snapshot.Tools[0].Parameters["type"])

	require.Equal(t, []domain.NamespaceInfo{
		{Name: "ns1", ToolCount: 1, Status: "offline"},
		{Name: "ns2", ToolCount: 2, Status: "offline"},
	}, reg.Servers())

	_, err = reg.CallTool(context.Background(), domain.ToolKey{Namespace: "ns1", Name: "echo"}, nil)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeFailedPrecond, code)
}
