package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"mcpbroker/internal/domain"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// NewChatModel creates a tool-calling chat model for the configured provider.
// Ollama is reached through its OpenAI-compatible endpoint.
func NewChatModel(ctx context.Context, cfg domain.ModelConfig) (model.ToolCallingChatModel, error) {
	switch cfg.Provider {
	case domain.ProviderOpenAI, "":
		apiKey, err := resolveAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   cfg.Model,
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
		})
	case domain.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		apiKey, err := resolveAPIKey(cfg)
		if err != nil {
			apiKey = "ollama"
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   cfg.Model,
			APIKey:  apiKey,
			BaseURL: baseURL,
		})
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "agent.new_chat_model", fmt.Sprintf("unsupported provider: %s", cfg.Provider), nil)
	}
}

func resolveAPIKey(cfg domain.ModelConfig) (string, error) {
	if apiKey := strings.TrimSpace(cfg.APIKey); apiKey != "" {
		return apiKey, nil
	}
	envVar := strings.TrimSpace(cfg.APIKeyEnvVar)
	if envVar == "" {
		return "", domain.E(domain.CodeInvalidArgument, "agent.api_key", "API key is required: set model.apiKey or model.apiKeyEnvVar", nil)
	}
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return "", domain.E(domain.CodeInvalidArgument, "agent.api_key", fmt.Sprintf("API key not found in env var %s", envVar), nil)
	}
	return apiKey, nil
}
