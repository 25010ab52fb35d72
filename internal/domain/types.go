package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ToolKey is the catalog-wide identity of a tool.
type ToolKey struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (k ToolKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return fmt.Sprintf("%s.%s", k.Namespace, k.Name)
}

// ToolMetadata is what a registry reports for one tool.
type ToolMetadata struct {
	Description    string
	ArgumentSchema map[string]any
	IsAsync        bool
	Tags           []string
}

// ToolInfo is a resolved catalog entry. Values are built per catalog build
// and are not mutated afterwards.
type ToolInfo struct {
	Namespace   string         `json:"namespace" yaml:"namespace" toml:"namespace"`
	Name        string         `json:"name" yaml:"name" toml:"name"`
	Description string         `json:"description" yaml:"description" toml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters" toml:"parameters"`
	IsAsync     bool           `json:"isAsync" yaml:"isAsync" toml:"isAsync"`
	Tags        []string       `json:"tags" yaml:"tags" toml:"tags"`
}

// Key returns the (namespace, name) identity.
func (t ToolInfo) Key() ToolKey {
	return ToolKey{Namespace: t.Namespace, Name: t.Name}
}

// NewToolInfo copies metadata into a ToolInfo. Parameters are deep-copied and
// tags are normalized into a sorted set.
func NewToolInfo(key ToolKey, md ToolMetadata) ToolInfo {
	params, _ := CloneJSONValue(md.ArgumentSchema).(map[string]any)
	return ToolInfo{
		Namespace:   key.Namespace,
		Name:        key.Name,
		Description: md.Description,
		Parameters:  params,
		IsAsync:     md.IsAsync,
		Tags:        NormalizeTags(md.Tags),
	}
}

// NormalizeTags returns a sorted copy of tags without duplicates or blanks.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ToolRegistry is the capability a backend must offer to be cataloged.
// ListTools order defines disambiguation priority between namespaces.
type ToolRegistry interface {
	ListTools(ctx context.Context) ([]ToolKey, error)
	GetMetadata(ctx context.Context, name, namespace string) (ToolMetadata, bool, error)
}

// ToolCaller executes a tool on the namespace that owns it.
type ToolCaller interface {
	CallTool(ctx context.Context, key ToolKey, args map[string]any) (ToolCallResult, error)
}

// ToolCallResult is the outcome of one tool execution.
type ToolCallResult struct {
	ToolName      string        `json:"toolName"`
	Namespace     string        `json:"namespace"`
	Success       bool          `json:"success"`
	Result        any           `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// NamespaceInfo summarizes one registry namespace.
type NamespaceInfo struct {
	Name      string `json:"name" yaml:"name" toml:"name"`
	ToolCount int    `json:"toolCount" yaml:"toolCount" toml:"toolCount"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty" toml:"status,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// CatalogSnapshot is a full catalog build tagged with a content hash.
type CatalogSnapshot struct {
	ETag    string     `json:"etag"`
	Tools   []ToolInfo `json:"tools"`
	BuiltAt time.Time  `json:"builtAt"`
}
