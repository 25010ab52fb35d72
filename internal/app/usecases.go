package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/agent"
	"mcpbroker/internal/infra/llmschema"
	"mcpbroker/internal/infra/store"
	"mcpbroker/internal/infra/telemetry"
	"mcpbroker/internal/infra/toolresult"
)

// SchemaView is the function-calling view handed to a model provider.
type SchemaView struct {
	Provider domain.Provider       `json:"provider"`
	ETag     string                `json:"etag"`
	Tools    []domain.FunctionSpec `json:"tools"`
	Mapping  domain.NameMapping    `json:"mapping"`
}

// CallView is a tool execution plus its normalized text.
type CallView struct {
	Result domain.ToolCallResult `json:"result"`
	Text   string                `json:"text"`
}

// SyncResult reports a stored snapshot and what changed since the last one.
type SyncResult struct {
	Path      string             `json:"path"`
	ETag      string             `json:"etag"`
	ToolCount int                `json:"toolCount"`
	BuiltAt   time.Time          `json:"builtAt"`
	Diff      domain.CatalogDiff `json:"diff"`
}

// ChatOptions override the configured model for one conversation.
type ChatOptions struct {
	Prompt   string
	Provider domain.Provider
	Model    string
}

func (a *Application) Servers(ctx context.Context) ([]domain.NamespaceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.tools.Servers(), nil
}

// Tools lists the catalog, either every (namespace, name) pair or the
// first-namespace-wins unique view.
func (a *Application) Tools(ctx context.Context, all bool) ([]domain.ToolInfo, error) {
	if all {
		return a.catalog.AllTools(ctx)
	}
	return a.catalog.UniqueTools(ctx)
}

// Tool looks up one tool. A miss is reported as CodeNotFound so callers can
// print it; the catalog itself treats a miss as absence.
func (a *Application) Tool(ctx context.Context, name, namespace string) (domain.ToolInfo, error) {
	tool, ok, err := a.catalog.ToolByName(ctx, name, namespace)
	if err != nil {
		return domain.ToolInfo{}, err
	}
	if !ok {
		return domain.ToolInfo{}, domain.E(domain.CodeNotFound, "app.tool", domain.ToolKey{Namespace: namespace, Name: name}.String(), domain.ErrToolNotFound)
	}
	return tool, nil
}

func (a *Application) Schema(ctx context.Context, provider domain.Provider) (SchemaView, error) {
	if provider == "" {
		provider = a.config.Model.Provider
	}
	adaptation, err := a.adapter.Adapt(ctx, provider)
	if err != nil {
		return SchemaView{}, err
	}
	return SchemaView{
		Provider: provider,
		ETag:     adaptation.ETag,
		Tools:    adaptation.Specs,
		Mapping:  adaptation.Mapping,
	}, nil
}

// CallTool executes a tool with raw JSON arguments. An empty namespace picks
// the namespace that wins in the unique view.
func (a *Application) CallTool(ctx context.Context, name, namespace, rawArgs string) (CallView, error) {
	ctx, _ = telemetry.EnsureRequestMeta(ctx, "")
	logger := telemetry.LoggerWithRequest(ctx, a.logger)

	tool, err := a.Tool(ctx, name, namespace)
	if err != nil {
		return CallView{}, err
	}
	args, err := llmschema.ParseArguments(rawArgs)
	if err != nil {
		return CallView{}, err
	}
	if err := llmschema.ValidateArguments(tool, args); err != nil {
		return CallView{}, err
	}

	result, err := a.tools.CallTool(ctx, tool.Key(), args)
	if err != nil {
		logger.Warn("tool call failed", telemetry.EventField(telemetry.EventToolCallError), telemetry.NamespaceField(tool.Namespace), telemetry.ToolField(tool.Name), zap.Error(err))
		return CallView{}, err
	}
	view := CallView{Result: result}
	if !result.Success {
		view.Text = result.Error
		return view, nil
	}

	payload := toolresult.Classify(result.Result)
	view.Text, err = payload.Format()
	a.metrics.ObserveResponseFormat(string(payload.Kind()), err)
	if err != nil {
		return CallView{}, err
	}
	logger.Info("tool called",
		telemetry.EventField(telemetry.EventToolCall),
		telemetry.NamespaceField(tool.Namespace),
		telemetry.ToolField(tool.Name),
		telemetry.DurationField(result.ExecutionTime),
	)
	return view, nil
}

// SyncSnapshot builds the catalog from the live servers and stores it for
// offline use.
func (a *Application) SyncSnapshot(ctx context.Context) (SyncResult, error) {
	if a.options.Offline {
		return SyncResult{}, domain.E(domain.CodeFailedPrecond, "app.sync", "cannot sync in offline mode", nil)
	}
	snapshot, err := a.catalog.Snapshot(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	snapshots, err := store.Open(a.config.SnapshotPath, store.Options{})
	if err != nil {
		return SyncResult{}, domain.Wrap(domain.CodeUnavailable, "app.sync", err)
	}
	defer snapshots.Close()

	previous, _, err := snapshots.Latest()
	if err != nil {
		return SyncResult{}, domain.Wrap(domain.CodeInternal, "app.sync", err)
	}
	if err := snapshots.Save(snapshot); err != nil {
		return SyncResult{}, domain.Wrap(domain.CodeInternal, "app.sync", err)
	}

	diff := domain.DiffCatalogSnapshots(previous, snapshot)
	a.logger.Info("catalog snapshot stored",
		telemetry.EventField(telemetry.EventCatalogBuilt),
		telemetry.ETagField(snapshot.ETag),
		zap.Int("tools", len(snapshot.Tools)),
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
		zap.Int("updated", len(diff.Updated)),
	)
	return SyncResult{
		Path:      snapshots.Path(),
		ETag:      snapshot.ETag,
		ToolCount: len(snapshot.Tools),
		BuiltAt:   snapshot.BuiltAt,
		Diff:      diff,
	}, nil
}

// SnapshotHistory lists stored snapshots, newest first. It needs no server
// connection.
func SnapshotHistory(cfg domain.Config) ([]store.SnapshotEntry, error) {
	snapshots, err := store.Open(cfg.SnapshotPath, store.Options{})
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "app.history", err)
	}
	defer snapshots.Close()
	return snapshots.History()
}

// Chat runs one prompt through the configured model with every unique tool
// available to it.
func (a *Application) Chat(ctx context.Context, opts ChatOptions) (agent.Transcript, error) {
	modelCfg := a.config.Model
	if opts.Provider != "" {
		modelCfg.Provider = opts.Provider
	}
	if opts.Model != "" {
		modelCfg.Model = opts.Model
	}
	chatModel, err := agent.NewChatModel(ctx, modelCfg)
	if err != nil {
		return agent.Transcript{}, err
	}
	return a.newAgent(chatModel, modelCfg).Run(ctx, opts.Prompt)
}
