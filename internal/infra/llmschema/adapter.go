package llmschema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/hashutil"
	"mcpbroker/internal/infra/mapping"
)

// ToolSource provides the unique-name view of the catalog.
type ToolSource interface {
	UniqueTools(ctx context.Context) ([]domain.ToolInfo, error)
}

type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

// Adapter turns catalog entries into provider function-calling schemas.
type Adapter struct {
	source  ToolSource
	logger  *zap.Logger
	metrics domain.Metrics
}

// Adaptation is the result of one adaptation call. It is read-only once
// returned.
type Adaptation struct {
	Provider domain.Provider
	Specs    []domain.FunctionSpec
	Mapping  domain.NameMapping
	ETag     string
	targets  map[string]domain.ToolKey
	tools    map[string]domain.ToolInfo
}

func New(source ToolSource, opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &Adapter{
		source:  source,
		logger:  logger.Named("llm_schema"),
		metrics: metrics,
	}
}

// ToolsForLLM returns one function spec per unique tool name, in the order
// of the catalog's unique view.
func (a *Adapter) ToolsForLLM(ctx context.Context) ([]domain.FunctionSpec, error) {
	adaptation, err := a.Adapt(ctx, domain.ProviderGeneric)
	if err != nil {
		return nil, err
	}
	return adaptation.Specs, nil
}

// AdaptedToolsForLLM returns function specs plus the exposed-name mapping
// used to route model tool calls back to catalog tools.
func (a *Adapter) AdaptedToolsForLLM(ctx context.Context, provider domain.Provider) ([]domain.FunctionSpec, domain.NameMapping, error) {
	adaptation, err := a.Adapt(ctx, provider)
	if err != nil {
		return nil, nil, err
	}
	return adaptation.Specs, adaptation.Mapping, nil
}

// Adapt builds specs, mapping and routing targets for a provider. Any tool
// whose parameters cannot be represented fails the whole call. An empty
// provider is treated as ProviderGeneric.
func (a *Adapter) Adapt(ctx context.Context, provider domain.Provider) (Adaptation, error) {
	if provider == "" {
		provider = domain.ProviderGeneric
	}
	tools, err := a.source.UniqueTools(ctx)
	if err != nil {
		a.metrics.ObserveAdaptation(provider, 0, err)
		return Adaptation{}, err
	}
	adaptation, err := a.adapt(provider, tools)
	a.metrics.ObserveAdaptation(provider, len(adaptation.Specs), err)
	if err != nil {
		return Adaptation{}, err
	}
	return adaptation, nil
}

func (a *Adapter) adapt(provider domain.Provider, tools []domain.ToolInfo) (Adaptation, error) {
	unique := mapping.FirstByKey(tools, func(tool domain.ToolInfo) string { return nameFor(provider, tool) })
	if dropped := len(tools) - len(unique); dropped > 0 {
		a.logger.Warn("duplicate exposed tool names dropped", zap.String("provider", string(provider)), zap.Int("dropped", dropped))
	}

	specs := make([]domain.FunctionSpec, 0, len(unique))
	names := make(domain.NameMapping, len(unique))
	targets := make(map[string]domain.ToolKey, len(unique))
	byName := make(map[string]domain.ToolInfo, len(unique))
	for _, tool := range unique {
		params, err := checkParameters(tool)
		if err != nil {
			a.logger.Warn("tool schema rejected", zap.String("namespace", tool.Namespace), zap.String("tool", tool.Name), zap.Error(err))
			return Adaptation{}, err
		}
		exposed := nameFor(provider, tool)
		specs = append(specs, domain.FunctionSpec{
			Type: domain.FunctionTypeFunction,
			Function: domain.FunctionDefinition{
				Name:        exposed,
				Description: tool.Description,
				Parameters:  params,
			},
		})
		names[exposed] = tool.Name
		targets[exposed] = tool.Key()
		byName[exposed] = tool
	}

	exposedNames := mapping.MapSlice(specs, func(spec domain.FunctionSpec) string { return spec.Function.Name })
	if !mapping.SameKeys(names, exposedNames) {
		return Adaptation{}, domain.E(domain.CodeInternal, "llmschema.adapt", "", domain.ErrMappingMismatch)
	}

	return Adaptation{
		Provider: provider,
		Specs:    specs,
		Mapping:  names,
		ETag:     hashutil.FunctionSpecsETag(a.logger, specs),
		targets:  targets,
		tools:    byName,
	}, nil
}

// nameFor is the per-provider naming policy. Every provider, known or not,
// currently exposes the canonical tool name.
func nameFor(_ domain.Provider, tool domain.ToolInfo) string {
	return tool.Name
}

// Resolve routes an exposed function name back to its catalog identity.
func (a Adaptation) Resolve(exposed string) (domain.ToolKey, bool) {
	key, ok := a.targets[exposed]
	return key, ok
}

// Tool returns the catalog entry behind an exposed function name.
func (a Adaptation) Tool(exposed string) (domain.ToolInfo, bool) {
	tool, ok := a.tools[exposed]
	return tool, ok
}

func checkParameters(tool domain.ToolInfo) (map[string]any, error) {
	if len(tool.Parameters) == 0 {
		return domain.EmptyParameters(), nil
	}
	if raw, ok := tool.Parameters["type"]; ok {
		typ, isString := raw.(string)
		if !isString || typ != "object" {
			return nil, &domain.SchemaError{Tool: tool.Key(), Reason: fmt.Sprintf("top-level type must be \"object\", got %v", raw)}
		}
	}
	if _, err := compileSchema(tool.Parameters); err != nil {
		return nil, &domain.SchemaError{Tool: tool.Key(), Cause: err}
	}
	params, _ := domain.CloneJSONValue(tool.Parameters).(map[string]any)
	return params, nil
}

func compileSchema(params map[string]any) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}

// ValidateArguments checks model-supplied arguments against a tool's
// parameter schema.
func ValidateArguments(tool domain.ToolInfo, args map[string]any) error {
	if len(tool.Parameters) == 0 {
		return nil
	}
	resolved, err := compileSchema(tool.Parameters)
	if err != nil {
		return &domain.SchemaError{Tool: tool.Key(), Cause: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := resolved.Validate(args); err != nil {
		return domain.E(domain.CodeInvalidArgument, "llmschema.validate_arguments", err.Error(), errors.Join(domain.ErrInvalidArguments, err))
	}
	return nil
}
