package domain

import "time"

type OperationStatus string

const (
	OperationSuccess OperationStatus = "success"
	OperationError   OperationStatus = "error"
)

// StatusFor reports the status label for an operation result.
func StatusFor(err error) OperationStatus {
	if err != nil {
		return OperationError
	}
	return OperationSuccess
}

// Metrics records operational metrics for catalog builds and adaptation.
type Metrics interface {
	ObserveCatalogBuild(op string, duration time.Duration, tools int, err error)
	ObserveAdaptation(provider Provider, tools int, err error)
	ObserveResponseFormat(kind string, err error)
	ObserveToolCall(namespace string, duration time.Duration, err error)
	ObserveModelTokens(provider Provider, model string, tokens int)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveCatalogBuild(string, time.Duration, int, error) {}
func (NoopMetrics) ObserveAdaptation(Provider, int, error)                {}
func (NoopMetrics) ObserveResponseFormat(string, error)                   {}
func (NoopMetrics) ObserveToolCall(string, time.Duration, error)          {}
func (NoopMetrics) ObserveModelTokens(Provider, string, int)              {}

var _ Metrics = NoopMetrics{}
