package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/llmschema"
)

// scriptedChatModel replies with the queued messages in order.
type scriptedChatModel struct {
	replies []*schema.Message
	bound   []*schema.ToolInfo
	seen    [][]*schema.Message
	err     error
}

func (m *scriptedChatModel) Generate(_ context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.seen = append(m.seen, append([]*schema.Message(nil), messages...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *scriptedChatModel) BindTools(tools []*schema.ToolInfo) error {
	m.bound = tools
	return nil
}

func (m *scriptedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.bound = tools
	return m, nil
}

type staticTools []domain.ToolInfo

func (s staticTools) UniqueTools(context.Context) ([]domain.ToolInfo, error) {
	return s, nil
}

type recordingCaller struct {
	calls  []domain.ToolKey
	result func(key domain.ToolKey, args map[string]any) (domain.ToolCallResult, error)
}

func (c *recordingCaller) CallTool(_ context.Context, key domain.ToolKey, args map[string]any) (domain.ToolCallResult, error) {
	c.calls = append(c.calls, key)
	return c.result(key, args)
}

type tokenMetrics struct {
	domain.NoopMetrics
	tokens  int
	formats []string
}

func (m *tokenMetrics) ObserveModelTokens(_ domain.Provider, _ string, tokens int) {
	m.tokens += tokens
}

func (m *tokenMetrics) ObserveResponseFormat(kind string, _ error) {
	m.formats = append(m.formats, kind)
}

func catalogTools() staticTools {
	return staticTools{
		{
			Namespace:   "ns1",
			Name:        "echo",
			Description: "Echo text",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []any{"text"},
			},
		},
		{Namespace: "ns2", Name: "now"},
	}
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func echoCaller() *recordingCaller {
	return &recordingCaller{result: func(key domain.ToolKey, args map[string]any) (domain.ToolCallResult, error) {
		return domain.ToolCallResult{
			ToolName:  key.Name,
			Namespace: key.Namespace,
			Success:   true,
			Result:    []map[string]any{{"type": "text", "text": args["text"]}},
		}, nil
	}}
}

func newTestAgent(chat *scriptedChatModel, caller domain.ToolCaller, metrics domain.Metrics) *Agent {
	adapter := llmschema.New(catalogTools(), llmschema.Options{})
	return New(chat, adapter, caller, Options{Provider: domain.ProviderOpenAI, Model: "test-model", MaxTurns: 3, Metrics: metrics})
}

func TestAgent_RoundTrip(t *testing.T) {
	first := schema.AssistantMessage("", []schema.ToolCall{toolCall("call-1", "echo", `{"text":"hello"}`)})
	first.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{TotalTokens: 7}}
	final := schema.AssistantMessage("The tool said hello.", nil)
	final.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{TotalTokens: 5}}
	chat := &scriptedChatModel{replies: []*schema.Message{first, final}}
	caller := echoCaller()
	metrics := &tokenMetrics{}

	transcript, err := newTestAgent(chat, caller, metrics).Run(context.Background(), "say hello")
	require.NoError(t, err)

	assert.Equal(t, "The tool said hello.", transcript.Answer)
	assert.Equal(t, 2, transcript.Turns)
	assert.NotEmpty(t, transcript.ETag)
	require.Len(t, chat.bound, 2)
	assert.Equal(t, "echo", chat.bound[0].Name)

	require.Equal(t, []domain.ToolKey{{Namespace: "ns1", Name: "echo"}}, caller.calls)
	require.Len(t, transcript.ToolCalls, 1)
	assert.Equal(t, "hello", transcript.ToolCalls[0].Output)
	assert.Equal(t, "ns1", transcript.ToolCalls[0].Namespace)
	assert.False(t, transcript.ToolCalls[0].Failed)

	// The second request carries the tool reply keyed by call id.
	require.Len(t, chat.seen, 2)
	last := chat.seen[1][len(chat.seen[1])-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Equal(t, "hello", last.Content)

	assert.Equal(t, 12, metrics.tokens)
	assert.Equal(t, []string{"text_records"}, metrics.formats)
}

func TestAgent_ToolErrorsAreReportedToModel(t *testing.T) {
	tests := []struct {
		name    string
		call    schema.ToolCall
		caller  *recordingCaller
		wantMsg string
		called  bool
	}{
		{
			name:    "unknown tool",
			call:    toolCall("c1", "missing", `{}`),
			caller:  echoCaller(),
			wantMsg: "Error calling tool 'missing':",
		},
		{
			name:    "unparseable arguments",
			call:    toolCall("c2", "echo", `[1,2]`),
			caller:  echoCaller(),
			wantMsg: "Error calling tool 'echo':",
		},
		{
			name:    "arguments violate schema",
			call:    toolCall("c3", "echo", `{"text":5}`),
			caller:  echoCaller(),
			wantMsg: "Error calling tool 'echo':",
		},
		{
			name: "tool reports failure",
			call: toolCall("c4", "now", `{}`),
			caller: &recordingCaller{result: func(key domain.ToolKey, _ map[string]any) (domain.ToolCallResult, error) {
				return domain.ToolCallResult{ToolName: key.Name, Namespace: key.Namespace, Error: "clock unavailable"}, nil
			}},
			wantMsg: "Error calling tool 'now': clock unavailable",
			called:  true,
		},
		{
			name: "registry error",
			call: toolCall("c5", "now", ``),
			caller: &recordingCaller{result: func(domain.ToolKey, map[string]any) (domain.ToolCallResult, error) {
				return domain.ToolCallResult{}, errors.New("connection reset")
			}},
			wantMsg: "Error calling tool 'now': connection reset",
			called:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &scriptedChatModel{replies: []*schema.Message{
				schema.AssistantMessage("", []schema.ToolCall{tt.call}),
				schema.AssistantMessage("done", nil),
			}}

			transcript, err := newTestAgent(chat, tt.caller, nil).Run(context.Background(), "go")
			require.NoError(t, err)
			require.Len(t, transcript.ToolCalls, 1)
			record := transcript.ToolCalls[0]
			assert.True(t, record.Failed)
			assert.True(t, strings.HasPrefix(record.Output, tt.wantMsg), "output %q", record.Output)
			assert.Equal(t, tt.called, len(tt.caller.calls) == 1)
			assert.Equal(t, "done", transcript.Answer)
		})
	}
}

func TestAgent_MaxTurns(t *testing.T) {
	loop := schema.AssistantMessage("", []schema.ToolCall{toolCall("c", "echo", `{"text":"again"}`)})
	chat := &scriptedChatModel{replies: []*schema.Message{loop, loop, loop, loop}}

	transcript, err := newTestAgent(chat, echoCaller(), nil).Run(context.Background(), "loop")
	require.ErrorIs(t, err, ErrMaxTurns)
	assert.Equal(t, 3, transcript.Turns)
	assert.Len(t, transcript.ToolCalls, 3)
}

func TestAgent_GenerateError(t *testing.T) {
	chat := &scriptedChatModel{err: errors.New("rate limited")}

	_, err := newTestAgent(chat, echoCaller(), nil).Run(context.Background(), "hi")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnavailable, code)
}

func TestAgent_NoToolsSkipsBinding(t *testing.T) {
	chat := &scriptedChatModel{replies: []*schema.Message{schema.AssistantMessage("plain", nil)}}
	agent := New(chat, llmschema.New(staticTools{}, llmschema.Options{}), echoCaller(), Options{SystemPrompt: "be brief"})

	transcript, err := agent.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "plain", transcript.Answer)
	assert.Nil(t, chat.bound)
	require.Len(t, chat.seen[0], 2)
	assert.Equal(t, schema.System, chat.seen[0][0].Role)
}

func TestNewChatModel_Validation(t *testing.T) {
	_, err := NewChatModel(context.Background(), domain.ModelConfig{Provider: domain.ProviderAnthropic, Model: "x"})
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidArgument, code)

	t.Setenv("MCPBROKER_TEST_EMPTY_KEY", "")
	_, err = NewChatModel(context.Background(), domain.ModelConfig{Provider: domain.ProviderOpenAI, Model: "x", APIKeyEnvVar: "MCPBROKER_TEST_EMPTY_KEY"})
	require.Error(t, err)

	chat, err := NewChatModel(context.Background(), domain.ModelConfig{Provider: domain.ProviderOpenAI, Model: "x", APIKey: "sk-test"})
	require.NoError(t, err)
	require.NotNil(t, chat)
}

