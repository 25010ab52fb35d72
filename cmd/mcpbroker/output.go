package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
	outputTOML outputFormat = "toml"
)

// String, Set and Type make outputFormat a pflag.Value.
func (f *outputFormat) String() string {
	if *f == "" {
		return string(outputText)
	}
	return string(*f)
}

func (f *outputFormat) Set(value string) error {
	switch format := outputFormat(strings.ToLower(strings.TrimSpace(value))); format {
	case outputText, outputJSON, outputYAML, outputTOML:
		*f = format
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (text, json, yaml, toml)", value)
	}
}

func (f *outputFormat) Type() string {
	return "format"
}

// writeStructured encodes value in a machine-readable format. Keys follow the
// JSON field names; TOML output nests the value under root.
func writeStructured(w io.Writer, format outputFormat, root string, value any) error {
	switch format {
	case outputYAML, outputTOML:
		generic, err := toGeneric(value)
		if err != nil {
			return err
		}
		if format == outputYAML {
			encoder := yaml.NewEncoder(w)
			encoder.SetIndent(2)
			if err := encoder.Encode(generic); err != nil {
				return err
			}
			return encoder.Close()
		}
		data, err := toml.Marshal(map[string]any{root: dropNulls(generic)})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

func toGeneric(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	return normalizeNumbers(generic), nil
}

func normalizeNumbers(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		f, _ := typed.Float64()
		return f
	case map[string]any:
		for key, item := range typed {
			typed[key] = normalizeNumbers(item)
		}
		return typed
	case []any:
		for i, item := range typed {
			typed[i] = normalizeNumbers(item)
		}
		return typed
	default:
		return value
	}
}

// dropNulls removes null map entries and list items; TOML has no null.
func dropNulls(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			if item == nil {
				continue
			}
			out[key] = dropNulls(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			if item == nil {
				continue
			}
			out = append(out, dropNulls(item))
		}
		return out
	default:
		return value
	}
}
