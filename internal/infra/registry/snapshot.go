package registry

import (
	"context"
	"fmt"

	"mcpbroker/internal/domain"
)

// SnapshotRegistry serves a persisted catalog snapshot. It lists and
// describes tools but cannot execute them.
type SnapshotRegistry struct {
	keys  []domain.ToolKey
	tools map[domain.ToolKey]domain.ToolInfo
	etag  string
}

func NewSnapshotRegistry(snapshot domain.CatalogSnapshot) *SnapshotRegistry {
	keys := make([]domain.ToolKey, 0, len(snapshot.Tools))
	tools := make(map[domain.ToolKey]domain.ToolInfo, len(snapshot.Tools))
	for _, tool := range snapshot.Tools {
		key := tool.Key()
		if _, dup := tools[key]; dup {
			continue
		}
		keys = append(keys, key)
		tools[key] = domain.CloneToolInfo(tool)
	}
	return &SnapshotRegistry{keys: keys, tools: tools, etag: snapshot.ETag}
}

// ETag returns the tag of the snapshot this registry was built from.
func (r *SnapshotRegistry) ETag() string {
	return r.etag
}

func (r *SnapshotRegistry) ListTools(ctx context.Context) ([]domain.ToolKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.ToolKey(nil), r.keys...), nil
}

func (r *SnapshotRegistry) GetMetadata(ctx context.Context, name, namespace string) (domain.ToolMetadata, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolMetadata{}, false, err
	}
	tool, ok := r.tools[domain.ToolKey{Namespace: namespace, Name: name}]
	if !ok {
		return domain.ToolMetadata{}, false, nil
	}
	params, _ := domain.CloneJSONValue(tool.Parameters).(map[string]any)
	return domain.ToolMetadata{
		Description:    tool.Description,
		ArgumentSchema: params,
		IsAsync:        tool.IsAsync,
		Tags:           append([]string(nil), tool.Tags...),
	}, true, nil
}

func (r *SnapshotRegistry) CallTool(_ context.Context, key domain.ToolKey, _ map[string]any) (domain.ToolCallResult, error) {
	return domain.ToolCallResult{ToolName: key.Name, Namespace: key.Namespace},
		domain.E(domain.CodeFailedPrecond, "registry.call_tool", fmt.Sprintf("tool %s: offline catalog cannot execute tools", key), nil)
}

// Servers reports the namespaces present in the snapshot.
func (r *SnapshotRegistry) Servers() []domain.NamespaceInfo {
	index := make(map[string]int)
	out := make([]domain.NamespaceInfo, 0)
	for _, key := range r.keys {
		pos, ok := index[key.Namespace]
		if !ok {
			pos = len(out)
			index[key.Namespace] = pos
			out = append(out, domain.NamespaceInfo{Name: key.Namespace, Status: "offline"})
		}
		out[pos].ToolCount++
	}
	return out
}

var (
	_ domain.ToolRegistry = (*SnapshotRegistry)(nil)
	_ domain.ToolCaller   = (*SnapshotRegistry)(nil)
)
