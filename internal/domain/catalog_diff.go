package domain

import (
	"reflect"
	"sort"
)

// CatalogDiff summarizes tool changes between two catalog snapshots.
type CatalogDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Updated []string `json:"updated,omitempty"`
}

// IsEmpty reports whether the diff contains any changes.
func (d CatalogDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// DiffCatalogSnapshots compares tools by their (namespace, name) key.
// Keys in the result are sorted.
func DiffCatalogSnapshots(prev, next CatalogSnapshot) CatalogDiff {
	diff := CatalogDiff{}
	if prev.ETag != "" && prev.ETag == next.ETag {
		return diff
	}

	prevTools := indexTools(prev.Tools)
	nextTools := indexTools(next.Tools)

	for key, prevTool := range prevTools {
		nextTool, ok := nextTools[key]
		if !ok {
			diff.Removed = append(diff.Removed, key)
			continue
		}
		if !reflect.DeepEqual(prevTool, nextTool) {
			diff.Updated = append(diff.Updated, key)
		}
	}
	for key := range nextTools {
		if _, ok := prevTools[key]; !ok {
			diff.Added = append(diff.Added, key)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Updated)
	return diff
}

func indexTools(tools []ToolInfo) map[string]ToolInfo {
	out := make(map[string]ToolInfo, len(tools))
	for _, tool := range tools {
		out[tool.Key().String()] = tool
	}
	return out
}
