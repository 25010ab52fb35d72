package llmschema

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"

	"mcpbroker/internal/domain"
)

// EinoTools converts the adaptation's function specs into eino tool infos
// so they can be bound to an eino tool-calling chat model. Parameter schemas
// are passed through as JSON Schema, so anyOf, oneOf and $ref survive.
func (a Adaptation) EinoTools() ([]*schema.ToolInfo, error) {
	out := make([]*schema.ToolInfo, 0, len(a.Specs))
	for _, spec := range a.Specs {
		key, ok := a.Resolve(spec.Function.Name)
		if !ok {
			key = domain.ToolKey{Name: spec.Function.Name}
		}
		params, err := paramsOneOf(spec.Function.Parameters)
		if err != nil {
			return nil, &domain.SchemaError{Tool: key, Cause: err}
		}
		out = append(out, &schema.ToolInfo{
			Name:        spec.Function.Name,
			Desc:        spec.Function.Description,
			ParamsOneOf: params,
		})
	}
	return out, nil
}

func paramsOneOf(params map[string]any) (*schema.ParamsOneOf, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	var js jsonschema.Schema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return schema.NewParamsOneOfByJSONSchema(&js), nil
}
