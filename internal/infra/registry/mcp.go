// Package registry provides ToolRegistry implementations: live MCP server
// sessions and a persisted snapshot for offline use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/mcpcodec"
	"mcpbroker/internal/infra/transport"
)

const (
	StatusConnected = "connected"
	StatusDegraded  = "degraded"
	StatusError     = "error"
)

// Dialer opens the client transport for a server.
type Dialer func(ctx context.Context, spec domain.ServerSpec) (mcp.Transport, error)

type MCPOptions struct {
	Logger        *zap.Logger
	Metrics       domain.Metrics
	Dialer        Dialer
	ClientName    string
	ClientVersion string
	CallTimeout   time.Duration
	PingTimeout   time.Duration
}

// MCPRegistry exposes the tools of several MCP servers, one namespace per
// server. Enumeration order follows the configured server order.
type MCPRegistry struct {
	logger      *zap.Logger
	metrics     domain.Metrics
	dialer      Dialer
	client      *mcp.Client
	callTimeout time.Duration
	pingTimeout time.Duration

	mu      sync.RWMutex
	servers []*server
	closed  bool
}

type server struct {
	spec    domain.ServerSpec
	session *mcp.ClientSession
	allow   map[string]struct{}

	mu     sync.RWMutex
	status string
	cause  string
	tools  map[string]*mcp.Tool
	order  []string
}

func NewMCPRegistry(opts MCPOptions) *MCPRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.New
	}
	name := opts.ClientName
	if name == "" {
		name = domain.DefaultClientName
	}
	version := opts.ClientVersion
	if version == "" {
		version = domain.DefaultClientVersion
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	return &MCPRegistry{
		logger:      logger.Named("mcp_registry"),
		metrics:     metrics,
		dialer:      dialer,
		client:      mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil),
		callTimeout: opts.CallTimeout,
		pingTimeout: pingTimeout,
	}
}

// Connect opens a session to every server. A server that fails to connect
// is kept with an error status so it still shows up in Servers. Connect
// fails only when no server could be reached.
func (r *MCPRegistry) Connect(ctx context.Context, specs []domain.ServerSpec) error {
	servers := make([]*server, 0, len(specs))
	var errs []error
	for _, spec := range specs {
		srv := &server{spec: spec, allow: allowList(spec.ExposeTools)}
		session, err := r.connect(ctx, spec)
		if err != nil {
			r.logger.Error("server connect failed", zap.String("server", spec.Name), zap.Error(err))
			srv.status = StatusError
			srv.cause = err.Error()
			errs = append(errs, err)
		} else {
			r.logger.Info("server connected", zap.String("server", spec.Name))
			srv.session = session
			srv.status = StatusConnected
		}
		servers = append(servers, srv)
	}

	r.mu.Lock()
	previous := r.servers
	r.servers = servers
	r.closed = false
	r.mu.Unlock()
	closeServers(previous)

	if len(specs) > 0 && len(errs) == len(specs) {
		return domain.E(domain.CodeUnavailable, "registry.connect", "no servers connected", errors.Join(errs...))
	}
	return nil
}

func (r *MCPRegistry) connect(ctx context.Context, spec domain.ServerSpec) (*mcp.ClientSession, error) {
	tr, err := r.dialer(ctx, spec)
	if err != nil {
		return nil, err
	}
	session, err := r.client.Connect(ctx, tr, nil)
	if err != nil {
		return nil, fmt.Errorf("server %q: connect: %w", spec.Name, err)
	}
	return session, nil
}

// ListTools enumerates every exposed tool of every connected server and
// refreshes the cached tool definitions used by GetMetadata.
func (r *MCPRegistry) ListTools(ctx context.Context) ([]domain.ToolKey, error) {
	servers, err := r.snapshot("registry.list_tools")
	if err != nil {
		return nil, err
	}
	var keys []domain.ToolKey
	for _, srv := range servers {
		if srv.session == nil {
			continue
		}
		if err := r.refresh(ctx, srv); err != nil {
			return nil, err
		}
		srv.mu.RLock()
		for _, name := range srv.order {
			keys = append(keys, domain.ToolKey{Namespace: srv.spec.Name, Name: name})
		}
		srv.mu.RUnlock()
	}
	return keys, nil
}

// GetMetadata returns metadata for a tool last seen by ListTools. A server
// that has never been listed is listed on demand.
func (r *MCPRegistry) GetMetadata(ctx context.Context, name, namespace string) (domain.ToolMetadata, bool, error) {
	servers, err := r.snapshot("registry.get_metadata")
	if err != nil {
		return domain.ToolMetadata{}, false, err
	}
	srv := findServer(servers, namespace)
	if srv == nil || srv.session == nil {
		return domain.ToolMetadata{}, false, nil
	}

	srv.mu.RLock()
	listed := srv.tools != nil
	srv.mu.RUnlock()
	if !listed {
		if err := r.refresh(ctx, srv); err != nil {
			return domain.ToolMetadata{}, false, err
		}
	}

	srv.mu.RLock()
	tool, ok := srv.tools[name]
	srv.mu.RUnlock()
	if !ok {
		return domain.ToolMetadata{}, false, nil
	}
	md, err := mcpcodec.ToolMetadataFromMCP(tool)
	if err != nil {
		return domain.ToolMetadata{}, false, domain.E(domain.CodeInternal, "registry.get_metadata", "", err)
	}
	return md, true, nil
}

func (r *MCPRegistry) refresh(ctx context.Context, srv *server) error {
	tools, err := listAllTools(ctx, srv.session)
	if err != nil {
		srv.mu.Lock()
		srv.status = StatusDegraded
		srv.cause = err.Error()
		srv.mu.Unlock()
		return fmt.Errorf("server %q: list tools: %w", srv.spec.Name, err)
	}

	byName := make(map[string]*mcp.Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		if srv.allow != nil {
			if _, ok := srv.allow[tool.Name]; !ok {
				continue
			}
		}
		if _, dup := byName[tool.Name]; dup {
			r.logger.Warn("duplicate tool name from server", zap.String("server", srv.spec.Name), zap.String("tool", tool.Name))
			continue
		}
		byName[tool.Name] = tool
		order = append(order, tool.Name)
	}

	srv.mu.Lock()
	srv.tools = byName
	srv.order = order
	srv.status = StatusConnected
	srv.cause = ""
	srv.mu.Unlock()
	return nil
}

func listAllTools(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	var out []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Tools...)
		if res.NextCursor == "" {
			return out, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// CallTool executes a tool on the server that owns its namespace. Tool
// level failures are reported in the result; transport failures are errors.
func (r *MCPRegistry) CallTool(ctx context.Context, key domain.ToolKey, args map[string]any) (domain.ToolCallResult, error) {
	result := domain.ToolCallResult{ToolName: key.Name, Namespace: key.Namespace}
	servers, err := r.snapshot("registry.call_tool")
	if err != nil {
		return result, err
	}
	srv := findServer(servers, key.Namespace)
	if srv == nil {
		return result, domain.E(domain.CodeNotFound, "registry.call_tool", fmt.Sprintf("namespace %q", key.Namespace), domain.ErrNamespaceNotFound)
	}
	if srv.session == nil {
		return result, domain.E(domain.CodeUnavailable, "registry.call_tool", fmt.Sprintf("server %q is not connected", key.Namespace), nil)
	}
	if srv.allow != nil {
		if _, ok := srv.allow[key.Name]; !ok {
			return result, domain.E(domain.CodeNotFound, "registry.call_tool", fmt.Sprintf("tool %s", key), domain.ErrToolNotFound)
		}
	}

	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	if args == nil {
		args = map[string]any{}
	}

	started := time.Now()
	res, err := srv.session.CallTool(callCtx, &mcp.CallToolParams{Name: key.Name, Arguments: args})
	result.ExecutionTime = time.Since(started)
	r.metrics.ObserveToolCall(key.Namespace, result.ExecutionTime, err)
	if err != nil {
		code := domain.CodeUnavailable
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = domain.CodeDeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = domain.CodeCanceled
		}
		return result, domain.E(code, "registry.call_tool", fmt.Sprintf("call %s", key), err)
	}

	if res.IsError {
		result.Error = mcpcodec.CallResultError(res)
		return result, nil
	}
	payload, err := mcpcodec.CallResultPayload(res)
	if err != nil {
		return result, domain.E(domain.CodeInternal, "registry.call_tool", "", err)
	}
	result.Success = true
	result.Result = payload
	return result, nil
}

// Servers reports every configured server with its status and the number of
// exposed tools seen by the last listing.
func (r *MCPRegistry) Servers() []domain.NamespaceInfo {
	r.mu.RLock()
	servers := append([]*server(nil), r.servers...)
	r.mu.RUnlock()

	out := make([]domain.NamespaceInfo, 0, len(servers))
	for _, srv := range servers {
		srv.mu.RLock()
		info := domain.NamespaceInfo{Name: srv.spec.Name, ToolCount: len(srv.order), Status: srv.status}
		if srv.status == StatusError {
			info.Error = srv.cause
		}
		out = append(out, info)
		srv.mu.RUnlock()
	}
	return out
}

// Ping checks every connected server once and updates its status.
func (r *MCPRegistry) Ping(ctx context.Context) {
	r.mu.RLock()
	servers := append([]*server(nil), r.servers...)
	r.mu.RUnlock()

	for _, srv := range servers {
		if srv.session == nil {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
		err := srv.session.Ping(pingCtx, nil)
		cancel()

		status := StatusConnected
		if err != nil {
			status = StatusDegraded
		}
		srv.mu.Lock()
		if srv.status != status {
			r.logger.Info("server status changed", zap.String("server", srv.spec.Name), zap.String("status", status))
		}
		srv.status = status
		srv.mu.Unlock()
	}
}

// RunHeartbeat pings all servers every interval until ctx is done.
func (r *MCPRegistry) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Ping(ctx)
		}
	}
}

// Close ends every session. Further calls fail with ErrRegistryClosed.
func (r *MCPRegistry) Close() error {
	r.mu.Lock()
	servers := r.servers
	r.servers = nil
	r.closed = true
	r.mu.Unlock()
	return closeServers(servers)
}

func (r *MCPRegistry) snapshot(op string) ([]*server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, domain.E(domain.CodeUnavailable, op, "", domain.ErrRegistryClosed)
	}
	return append([]*server(nil), r.servers...), nil
}

func findServer(servers []*server, name string) *server {
	for _, srv := range servers {
		if srv.spec.Name == name {
			return srv
		}
	}
	return nil
}

func closeServers(servers []*server) error {
	var errs []error
	for _, srv := range servers {
		if srv.session == nil {
			continue
		}
		if err := srv.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server %q: %w", srv.spec.Name, err))
		}
	}
	return errors.Join(errs...)
}

func allowList(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out
}

var (
	_ domain.ToolRegistry = (*MCPRegistry)(nil)
	_ domain.ToolCaller   = (*MCPRegistry)(nil)
)
