// Package agent runs a bounded tool-calling conversation: catalog tools are
// offered to a chat model, its tool calls are executed on the owning
// namespace, and the normalized results are fed back until the model answers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/llmschema"
	"mcpbroker/internal/infra/telemetry"
	"mcpbroker/internal/infra/toolresult"
)

// ErrMaxTurns is returned when the model keeps requesting tools past the
// configured turn limit.
var ErrMaxTurns = errors.New("max turns reached without a final answer")

// SchemaSource adapts the catalog for a provider.
type SchemaSource interface {
	Adapt(ctx context.Context, provider domain.Provider) (llmschema.Adaptation, error)
}

type Options struct {
	Provider     domain.Provider
	Model        string
	MaxTurns     int
	SystemPrompt string
	Logger       *zap.Logger
	Metrics      domain.Metrics
}

// Agent drives one conversation per Run call. It holds no per-conversation
// state and may be shared.
type Agent struct {
	model    model.ToolCallingChatModel
	schemas  SchemaSource
	caller   domain.ToolCaller
	provider domain.Provider
	modelID  string
	maxTurns int
	system   string
	logger   *zap.Logger
	metrics  domain.Metrics
}

// ToolCallRecord is one executed (or rejected) tool call.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Namespace string         `json:"namespace,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    string         `json:"output"`
	Failed    bool           `json:"failed"`
	Duration  time.Duration  `json:"duration"`
}

// Transcript is the outcome of a Run.
type Transcript struct {
	Answer    string            `json:"answer"`
	Turns     int               `json:"turns"`
	ToolCalls []ToolCallRecord  `json:"toolCalls"`
	ETag      string            `json:"etag"`
	Messages  []*schema.Message `json:"-"`
}

func New(chatModel model.ToolCallingChatModel, schemas SchemaSource, caller domain.ToolCaller, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = domain.DefaultMaxTurns
	}
	provider := opts.Provider
	if provider == "" {
		provider = domain.DefaultProvider
	}
	return &Agent{
		model:    chatModel,
		schemas:  schemas,
		caller:   caller,
		provider: provider,
		modelID:  opts.Model,
		maxTurns: maxTurns,
		system:   opts.SystemPrompt,
		logger:   logger.Named("agent"),
		metrics:  metrics,
	}
}

// Run sends prompt to the model with every unique catalog tool bound and
// resolves tool calls until the model replies without any.
func (a *Agent) Run(ctx context.Context, prompt string) (Transcript, error) {
	ctx, _ = telemetry.EnsureRequestMeta(ctx, "")
	logger := telemetry.LoggerWithRequest(ctx, a.logger)

	adaptation, err := a.schemas.Adapt(ctx, a.provider)
	if err != nil {
		return Transcript{}, err
	}
	bound, err := a.bindTools(adaptation)
	if err != nil {
		return Transcript{}, err
	}

	transcript := Transcript{ETag: adaptation.ETag}
	if a.system != "" {
		transcript.Messages = append(transcript.Messages, schema.SystemMessage(a.system))
	}
	transcript.Messages = append(transcript.Messages, schema.UserMessage(prompt))

	for transcript.Turns < a.maxTurns {
		transcript.Turns++
		reply, err := bound.Generate(ctx, transcript.Messages)
		if err != nil {
			return transcript, domain.Wrap(domain.CodeUnavailable, "agent.generate", err)
		}
		a.observeTokenUsage(reply)
		transcript.Messages = append(transcript.Messages, reply)

		if len(reply.ToolCalls) == 0 {
			transcript.Answer = reply.Content
			logger.Info("conversation finished",
				telemetry.EventField(telemetry.EventModelTurn),
				telemetry.ProviderField(string(a.provider)),
				zap.Int("turns", transcript.Turns),
				zap.Int("tool_calls", len(transcript.ToolCalls)),
			)
			return transcript, nil
		}

		for _, call := range reply.ToolCalls {
			record := a.handleToolCall(ctx, adaptation, call)
			transcript.ToolCalls = append(transcript.ToolCalls, record)
			transcript.Messages = append(transcript.Messages, schema.ToolMessage(record.Output, call.ID))
		}
	}

	logger.Warn("turn limit reached", telemetry.EventField(telemetry.EventModelTurn), zap.Int("max_turns", a.maxTurns))
	return transcript, domain.E(domain.CodeFailedPrecond, "agent.run", fmt.Sprintf("no final answer after %d turns", a.maxTurns), ErrMaxTurns)
}

func (a *Agent) bindTools(adaptation llmschema.Adaptation) (model.ToolCallingChatModel, error) {
	infos, err := adaptation.EinoTools()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return a.model, nil
	}
	bound, err := a.model.WithTools(infos)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "agent.bind_tools", err)
	}
	return bound, nil
}

// handleToolCall never fails the conversation: every problem is reported to
// the model as the tool's reply.
func (a *Agent) handleToolCall(ctx context.Context, adaptation llmschema.Adaptation, call schema.ToolCall) ToolCallRecord {
	name := call.Function.Name
	record := ToolCallRecord{ID: call.ID, Name: name}
	fail := func(err error) ToolCallRecord {
		record.Failed = true
		record.Output = fmt.Sprintf("Error calling tool '%s': %v", name, err)
		a.logger.Warn("tool call failed",
			telemetry.EventField(telemetry.EventToolCallError),
			telemetry.ToolField(name),
			telemetry.NamespaceField(record.Namespace),
			zap.Error(err),
		)
		return record
	}

	key, ok := adaptation.Resolve(name)
	if !ok {
		return fail(domain.E(domain.CodeNotFound, "agent.tool_call", "unknown tool", domain.ErrToolNotFound))
	}
	record.Namespace = key.Namespace

	args, err := llmschema.ParseArguments(call.Function.Arguments)
	if err != nil {
		return fail(err)
	}
	record.Arguments = args
	if tool, ok := adaptation.Tool(name); ok {
		if err := llmschema.ValidateArguments(tool, args); err != nil {
			return fail(err)
		}
	}

	started := time.Now()
	result, err := a.caller.CallTool(ctx, key, args)
	record.Duration = time.Since(started)
	if err != nil {
		return fail(err)
	}
	if !result.Success {
		return fail(errors.New(result.Error))
	}

	payload := toolresult.Classify(result.Result)
	text, err := payload.Format()
	a.metrics.ObserveResponseFormat(string(payload.Kind()), err)
	if err != nil {
		return fail(err)
	}
	record.Output = text
	return record
}

func (a *Agent) observeTokenUsage(reply *schema.Message) {
	if reply == nil || reply.ResponseMeta == nil || reply.ResponseMeta.Usage == nil {
		return
	}
	tokens := reply.ResponseMeta.Usage.TotalTokens
	if tokens <= 0 {
		return
	}
	a.metrics.ObserveModelTokens(a.provider, a.modelID, tokens)
}
