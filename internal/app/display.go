package app

import (
	"fmt"
	"sort"
	"strings"

	"mcpbroker/internal/domain"
)

// ToolDisplay is the human-facing view of a catalog entry.
type ToolDisplay struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Server      string   `json:"server" yaml:"server" toml:"server"`
	Description string   `json:"description" yaml:"description" toml:"description"`
	Parameters  []string `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// DisplayTool renders a tool for listing. With details, each property is
// shown as "name (required): type", ordered by name.
func DisplayTool(tool domain.ToolInfo, details bool) ToolDisplay {
	display := ToolDisplay{
		Name:        tool.Name,
		Server:      tool.Namespace,
		Description: tool.Description,
		Tags:        tool.Tags,
	}
	if display.Description == "" {
		display.Description = "No description"
	}
	if details {
		display.Parameters = parameterLines(tool.Parameters)
	}
	return display
}

func parameterLines(params map[string]any) []string {
	props, _ := params["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := make(map[string]bool)
	switch typed := params["required"].(type) {
	case []any:
		for _, item := range typed {
			if name, ok := item.(string); ok {
				required[name] = true
			}
		}
	case []string:
		for _, name := range typed {
			required[name] = true
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		var b strings.Builder
		b.WriteString(name)
		if required[name] {
			b.WriteString(" (required)")
		}
		fmt.Fprintf(&b, ": %s", propertyType(props[name]))
		lines = append(lines, b.String())
	}
	return lines
}

func propertyType(prop any) string {
	obj, ok := prop.(map[string]any)
	if !ok {
		return "any"
	}
	switch typed := obj["type"].(type) {
	case string:
		return typed
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "|")
	default:
		return "any"
	}
}
