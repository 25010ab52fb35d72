package domain

const (
	DefaultProvider                   = ProviderOpenAI
	DefaultModel                      = "gpt-4o-mini"
	DefaultAPIKeyEnvVar               = "OPENAI_API_KEY"
	DefaultFetchConcurrency           = 1
	DefaultCallTimeoutSeconds         = 60
	DefaultMaxTurns                   = 4
	DefaultObservabilityListenAddress = "127.0.0.1:9464"
	DefaultLogLevel                   = "info"
	DefaultLogFormat                  = "json"
	DefaultSnapshotFile               = "catalog.db"
	DefaultClientName                 = "mcpbroker"
	DefaultClientVersion              = "0.1.0"
)
