package app

import (
	"github.com/cloudwego/eino/components/model"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/agent"
)

const defaultSystemPrompt = "You can call tools to answer the user. Call a tool only when it helps; reply in plain text when you are done."

func (a *Application) newAgent(chatModel model.ToolCallingChatModel, cfg domain.ModelConfig) *agent.Agent {
	return agent.New(chatModel, a.adapter, a.tools, agent.Options{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		MaxTurns:     cfg.MaxTurns,
		SystemPrompt: defaultSystemPrompt,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
}
