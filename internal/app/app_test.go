package app

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/registry"
)

func echoHandler(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: args.Text}}}, nil
}

func newMCPServer(name string, tools ...string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "0.1.0"}, nil)
	for _, tool := range tools {
		server.AddTool(&mcp.Tool{
			Name:        tool,
			Description: name + " " + tool,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []any{"text"},
			},
		}, echoHandler)
	}
	return server
}

func inMemoryDialer(servers map[string]*mcp.Server) registry.Dialer {
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

// newTestApplication connects ns1 (echo) and ns2 (echo, shout) in process.
func newTestApplication(t *testing.T) *Application {
	t.Helper()
	servers := map[string]*mcp.Server{
		"ns1": newMCPServer("ns1", "echo"),
		"ns2": newMCPServer("ns2", "echo", "shout"),
	}
	cfg := domain.Config{
		Servers:          []domain.ServerSpec{{Name: "ns1", Cmd: []string{"unused"}}, {Name: "ns2", Cmd: []string{"unused"}}},
		Model:            domain.ModelConfig{Provider: domain.ProviderOpenAI, Model: "test", MaxTurns: 2},
		FetchConcurrency: 2,
		SnapshotPath:     filepath.Join(t.TempDir(), "catalog.db"),
	}
	mcpRegistry := registry.NewMCPRegistry(registry.MCPOptions{Dialer: inMemoryDialer(servers)})
	require.NoError(t, mcpRegistry.Connect(context.Background(), cfg.EnabledServers()))
	t.Cleanup(func() { _ = mcpRegistry.Close() })

	return newApplicationFor(t, cfg, mcpRegistry, Options{})
}

func newApplicationFor(t *testing.T, cfg domain.Config, tools Registry, opts Options) *Application {
	t.Helper()
	logger := zap.NewNop()
	metricsRegistry := prometheus.NewRegistry()
	metrics := NewMetrics(metricsRegistry)
	catalog := NewCatalog(tools, cfg, logger, metrics)
	return NewApplication(ApplicationOptions{
		Options:         opts,
		Config:          cfg,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
		Metrics:         metrics,
		Registry:        tools,
		Catalog:         catalog,
		Adapter:         NewAdapter(catalog, logger, metrics),
	})
}

func TestApplication_Tools(t *testing.T) {
	application := newTestApplication(t)
	ctx := context.Background()

	all, err := application.Tools(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)

	unique, err := application.Tools(ctx, false)
	require.NoError(t, err)
	require.Len(t, unique, 2)
	assert.Equal(t, domain.ToolKey{Namespace: "ns1", Name: "echo"}, unique[0].Key())

	tool, err := application.Tool(ctx, "echo", "ns2")
	require.NoError(t, err)
	assert.Equal(t, "ns2 echo", tool.Description)

	_, err = application.Tool(ctx, "missing", "")
	require.ErrorIs(t, err, domain.ErrToolNotFound)

	servers, err := application.Servers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.NamespaceInfo{
		{Name: "ns1", ToolCount: 1, Status: registry.StatusConnected},
		{Name: "ns2", ToolCount: 2, Status: registry.StatusConnected},
	}, servers)
}

func TestApplication_Schema(t *testing.T) {
	application := newTestApplication(t)

	view, err := application.Schema(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderOpenAI, view.Provider)
	assert.NotEmpty(t, view.ETag)
	assert.Equal(t, domain.NameMapping{"echo": "echo", "shout": "shout"}, view.Mapping)
	require.Len(t, view.Tools, 2)
	assert.Equal(t, "ns1 echo", view.Tools[0].Function.Description)
}

func TestApplication_CallTool(t *testing.T) {
	application := newTestApplication(t)
	ctx := context.Background()

	view, err := application.CallTool(ctx, "shout", "", `{"text":"hey"}`)
	require.NoError(t, err)
	assert.True(t, view.Result.Success)
	assert.Equal(t, "ns2", view.Result.Namespace)
	assert.Equal(t, "hey", view.Text)

	_, err = application.CallTool(ctx, "echo", "ns1", `{}`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)

	_, err = application.CallTool(ctx, "echo", "ns1", `[1]`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
}

func TestApplication_SyncThenOffline(t *testing.T) {
	application := newTestApplication(t)
	ctx := context.Background()

	first, err := application.SyncSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.ToolCount)
	assert.Equal(t, []string{"ns1.echo", "ns2.echo", "ns2.shout"}, first.Diff.Added)

	second, err := application.SyncSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ETag, second.ETag)
	assert.True(t, second.Diff.IsEmpty())

	history, err := SnapshotHistory(application.Config())
	require.NoError(t, err)
	require.Len(t, history, 2)

	cfg := application.Config()
	opts := Options{Offline: true}
	offline, cleanup, err := NewRegistry(ctx, opts, cfg, zap.NewNop(), domain.NoopMetrics{})
	require.NoError(t, err)
	defer cleanup()

	offlineApp := newApplicationFor(t, cfg, offline, opts)
	tools, err := offlineApp.Tools(ctx, true)
	require.NoError(t, err)
	assert.Len(t, tools, 3)

	_, err = offlineApp.CallTool(ctx, "echo", "ns1", `{"text":"x"}`)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeFailedPrecond, code)

	_, err = offlineApp.SyncSnapshot(ctx)
	code, ok = domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeFailedPrecond, code)
}

func TestNewRegistry_OfflineWithoutSnapshot(t *testing.T) {
	cfg := domain.Config{SnapshotPath: filepath.Join(t.TempDir(), "empty.db")}

	_, _, err := NewRegistry(context.Background(), Options{Offline: true}, cfg, zap.NewNop(), domain.NoopMetrics{})
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeFailedPrecond, code)
}

func TestApplication_Health(t *testing.T) {
	application := newTestApplication(t)
	report := application.health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Len(t, report.Servers, 2)

	mcpRegistry := registry.NewMCPRegistry(registry.MCPOptions{Dialer: inMemoryDialer(map[string]*mcp.Server{
		"up": newMCPServer("up", "echo"),
	})})
	require.NoError(t, mcpRegistry.Connect(context.Background(), []domain.ServerSpec{{Name: "down"}, {Name: "up"}}))
	t.Cleanup(func() { _ = mcpRegistry.Close() })
	partial := newApplicationFor(t, domain.Config{}, mcpRegistry, Options{})
	assert.Equal(t, "ok", partial.health(context.Background()).Status)
}

func TestApplication_HealthDegradedWhenNoServerConnects(t *testing.T) {
	mcpRegistry := registry.NewMCPRegistry(registry.MCPOptions{Dialer: inMemoryDialer(nil)})
	err := mcpRegistry.Connect(context.Background(), []domain.ServerSpec{{Name: "a"}, {Name: "b"}})
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
	t.Cleanup(func() { _ = mcpRegistry.Close() })

	application := newApplicationFor(t, domain.Config{}, mcpRegistry, Options{})
	report := application.health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	require.Len(t, report.Servers, 2)
	for _, srv := range report.Servers {
		assert.Equal(t, registry.StatusError, srv.Status)
		assert.Contains(t, srv.Error, "unreachable")
	}
}
