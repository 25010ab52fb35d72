package domain

// Provider names a model-provider function-calling dialect.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderEino      Provider = "eino"
	// ProviderGeneric labels provider-agnostic function specs.
	ProviderGeneric   Provider = "generic"
)

// FunctionTypeFunction is the only function spec type providers accept.
const FunctionTypeFunction = "function"

// FunctionSpec is one entry of a provider tools array.
type FunctionSpec struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function to a model.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NameMapping maps exposed function names to canonical tool names.
type NameMapping map[string]string

// EmptyParameters is the schema used for tools that take no arguments.
func EmptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
