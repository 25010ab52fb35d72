package domain

// CloneJSONValue deep-copies maps and slices produced by JSON decoding.
// Other values are returned as-is.
func CloneJSONValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case map[string]any:
		if typed == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = CloneJSONValue(item)
		}
		return out
	case []any:
		if typed == nil {
			return []any(nil)
		}
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CloneJSONValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

// CloneToolInfo returns a deep copy of a tool.
func CloneToolInfo(tool ToolInfo) ToolInfo {
	out := tool
	if tool.Parameters != nil {
		out.Parameters, _ = CloneJSONValue(tool.Parameters).(map[string]any)
	}
	if tool.Tags != nil {
		out.Tags = append([]string(nil), tool.Tags...)
	}
	return out
}

// CloneCatalogSnapshot returns a deep copy of a snapshot.
func CloneCatalogSnapshot(snapshot CatalogSnapshot) CatalogSnapshot {
	out := snapshot
	if snapshot.Tools != nil {
		out.Tools = make([]ToolInfo, len(snapshot.Tools))
		for i, tool := range snapshot.Tools {
			out.Tools[i] = CloneToolInfo(tool)
		}
	}
	return out
}
