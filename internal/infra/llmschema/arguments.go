package llmschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"mcpbroker/internal/domain"
)

// ParseArguments decodes the argument string of a model tool call. Empty
// input and JSON null mean no arguments. Malformed JSON is repaired once
// before giving up.
func ParseArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	args, err := decodeArguments(trimmed)
	if err == nil {
		return args, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(trimmed)
	if repairErr != nil {
		return nil, invalidArguments(raw, err)
	}
	args, err = decodeArguments(repaired)
	if err != nil {
		return nil, invalidArguments(raw, err)
	}
	return args, nil
}

func decodeArguments(raw string) (map[string]any, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	switch typed := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return typed, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", value)
	}
}

func invalidArguments(raw string, cause error) error {
	return domain.E(
		domain.CodeInvalidArgument,
		"llmschema.parse_arguments",
		fmt.Sprintf("decode arguments %q: %v", raw, cause),
		fmt.Errorf("%w: %w", domain.ErrInvalidArguments, cause),
	)
}
