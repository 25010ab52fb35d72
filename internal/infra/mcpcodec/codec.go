package mcpcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbroker/internal/domain"
)

// Tags derived from MCP tool annotations.
const (
	TagReadOnly    = "read-only"
	TagIdempotent  = "idempotent"
	TagDestructive = "destructive"
	TagOpenWorld   = "open-world"
)

// ToolMetadataFromMCP converts an MCP tool to registry metadata.
// MCP tools are always invoked over a session, so they are reported as async.
func ToolMetadataFromMCP(tool *mcp.Tool) (domain.ToolMetadata, error) {
	if tool == nil {
		return domain.ToolMetadata{}, nil
	}
	schema, err := SchemaMap(tool.InputSchema)
	if err != nil {
		return domain.ToolMetadata{}, fmt.Errorf("tool %q input schema: %w", tool.Name, err)
	}
	return domain.ToolMetadata{
		Description:    tool.Description,
		ArgumentSchema: schema,
		IsAsync:        true,
		Tags:           tagsFromAnnotations(tool.Annotations),
	}, nil
}

// ToolToMCP converts a catalog entry back into an MCP tool advertisement.
func ToolToMCP(tool domain.ToolInfo) *mcp.Tool {
	schema := tool.Parameters
	if len(schema) == 0 {
		schema = domain.EmptyParameters()
	}
	return &mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: domain.CloneJSONValue(schema),
		Annotations: annotationsFromTags(tool.Tags),
	}
}

// SchemaMap normalizes any JSON-shaped schema value into a map.
func SchemaMap(schema any) (map[string]any, error) {
	switch typed := schema.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		cloned, _ := domain.CloneJSONValue(typed).(map[string]any)
		return cloned, nil
	case json.RawMessage:
		return decodeObject(typed)
	case []byte:
		return decodeObject(typed)
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil, err
		}
		return decodeObject(raw)
	}
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema object: %w", err)
	}
	return out, nil
}

// IsObjectSchema reports whether a schema declares a JSON object.
func IsObjectSchema(schema any) bool {
	obj, ok := schema.(map[string]any)
	if !ok || obj == nil {
		return false
	}
	switch typed := obj["type"].(type) {
	case string:
		return typed == "object"
	case []any:
		for _, item := range typed {
			if s, ok := item.(string); ok && s == "object" {
				return true
			}
		}
	case []string:
		for _, item := range typed {
			if item == "object" {
				return true
			}
		}
	}
	return false
}

// CallResultPayload converts an MCP call result into the generic payload
// shape accepted by the response normalizer: a list of content records, or
// the structured content when no content blocks were returned.
func CallResultPayload(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return []map[string]any{}, nil
	}
	if len(result.Content) == 0 && result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	raw, err := json.Marshal(result.Content)
	if err != nil {
		return nil, fmt.Errorf("encode call result content: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode call result content: %w", err)
	}
	if records == nil {
		records = []map[string]any{}
	}
	return records, nil
}

// CallResultError extracts the text of an error result.
func CallResultError(result *mcp.CallToolResult) string {
	if result == nil || !result.IsError {
		return ""
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok && text.Text != "" {
			return text.Text
		}
	}
	return "tool reported an error"
}

// HashToolInfos returns a deterministic hash for a tool list or an error.
func HashToolInfos(tools []domain.ToolInfo) (string, error) {
	hasher := sha256.New()
	for i, tool := range tools {
		raw, err := json.Marshal(tool)
		if err != nil {
			return "", fmt.Errorf("marshal tool %d: %w", i, err)
		}
		_, _ = hasher.Write(raw)
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashFunctionSpecs returns a deterministic hash for function specs or an error.
func HashFunctionSpecs(specs []domain.FunctionSpec) (string, error) {
	raw, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("marshal function specs: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func tagsFromAnnotations(ann *mcp.ToolAnnotations) []string {
	if ann == nil {
		return nil
	}
	tags := make([]string, 0, 4)
	if ann.ReadOnlyHint {
		tags = append(tags, TagReadOnly)
	}
	if ann.IdempotentHint {
		tags = append(tags, TagIdempotent)
	}
	if ann.DestructiveHint != nil && *ann.DestructiveHint {
		tags = append(tags, TagDestructive)
	}
	if ann.OpenWorldHint != nil && *ann.OpenWorldHint {
		tags = append(tags, TagOpenWorld)
	}
	return domain.NormalizeTags(tags)
}

func annotationsFromTags(tags []string) *mcp.ToolAnnotations {
	if len(tags) == 0 {
		return nil
	}
	out := &mcp.ToolAnnotations{}
	set := false
	for _, tag := range tags {
		switch tag {
		case TagReadOnly:
			out.ReadOnlyHint = true
			set = true
		case TagIdempotent:
			out.IdempotentHint = true
			set = true
		case TagDestructive:
			val := true
			out.DestructiveHint = &val
			set = true
		case TagOpenWorld:
			val := true
			out.OpenWorldHint = &val
			set = true
		}
	}
	if !set {
		return nil
	}
	return out
}
