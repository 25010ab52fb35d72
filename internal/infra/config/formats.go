package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFor picks the encoding from a file extension. Unknown extensions
// are read as YAML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// toYAMLDocument converts a config file into a YAML document. YAML is a
// superset of JSON, so only TOML needs translating.
func toYAMLDocument(format Format, data []byte) ([]byte, error) {
	if format != FormatTOML {
		return data, nil
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse toml config: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert toml config: %w", err)
	}
	return out, nil
}

// legacyServer is one entry of the "mcpServers" table used by MCP client
// configuration files.
type legacyServer struct {
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	Cwd      string            `yaml:"cwd"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Disabled bool              `yaml:"disabled"`
}

// liftMCPServers rewrites an "mcpServers" mapping into entries appended to
// the "servers" sequence, keeping document order. For TOML sources the
// mapping order is not preserved by the decoder, so entries are sorted.
func liftMCPServers(root *yaml.Node, sorted bool) error {
	doc := documentMapping(root)
	if doc == nil {
		return nil
	}
	idx := mappingIndex(doc, "mcpServers")
	if idx < 0 {
		return nil
	}
	legacy := doc.Content[idx+1]
	if legacy.Kind != yaml.MappingNode {
		return fmt.Errorf("mcpServers must be a mapping")
	}

	type entry struct {
		name string
		node *yaml.Node
	}
	entries := make([]entry, 0, len(legacy.Content)/2)
	for i := 0; i+1 < len(legacy.Content); i += 2 {
		entries = append(entries, entry{name: legacy.Content[i].Value, node: legacy.Content[i+1]})
	}
	if sorted {
		sort.Slice(entries, func(a, b int) bool { return entries[a].name < entries[b].name })
	}

	servers := ensureSequence(doc, "servers")
	for _, e := range entries {
		var server legacyServer
		if err := e.node.Decode(&server); err != nil {
			return fmt.Errorf("mcpServers.%s: %w", e.name, err)
		}
		converted := rawServerSpec{
			Name:     e.name,
			Env:      server.Env,
			Cwd:      server.Cwd,
			Endpoint: server.URL,
			Headers:  server.Headers,
			Disabled: server.Disabled,
		}
		if server.Command != "" {
			converted.Cmd = append([]string{server.Command}, server.Args...)
		}
		var node yaml.Node
		if err := node.Encode(converted); err != nil {
			return fmt.Errorf("mcpServers.%s: %w", e.name, err)
		}
		servers.Content = append(servers.Content, &node)
	}

	doc.Content = append(doc.Content[:idx], doc.Content[idx+2:]...)
	return nil
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root == nil || root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	return doc
}

func mappingIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func ensureSequence(mapping *yaml.Node, key string) *yaml.Node {
	if idx := mappingIndex(mapping, key); idx >= 0 {
		value := mapping.Content[idx+1]
		if value.Kind == yaml.SequenceNode {
			return value
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		mapping.Content[idx+1] = seq
		return seq
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		seq,
	)
	return seq
}
