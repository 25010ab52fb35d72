package hashutil

import (
	"fmt"

	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/mcpcodec"
)

// CatalogETag returns an ETag for a tool list and logs on failure.
func CatalogETag(logger *zap.Logger, tools []domain.ToolInfo) string {
	return hashWithLogger(logger, "catalog", func() (string, error) {
		return mcpcodec.HashToolInfos(tools)
	})
}

// FunctionSpecsETag returns an ETag for provider function specs and logs on failure.
func FunctionSpecsETag(logger *zap.Logger, specs []domain.FunctionSpec) string {
	return hashWithLogger(logger, "function_specs", func() (string, error) {
		return mcpcodec.HashFunctionSpecs(specs)
	})
}

func hashWithLogger(logger *zap.Logger, label string, fn func() (string, error)) string {
	etag, err := fn()
	if err != nil {
		if logger != nil {
			logger.Warn(fmt.Sprintf("%s hash failed", label), zap.Error(err))
		}
		return ""
	}
	return etag
}
