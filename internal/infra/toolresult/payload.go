// Package toolresult turns tool execution payloads into text that can be fed
// back into a model conversation.
package toolresult

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"mcpbroker/internal/domain"
)

type Kind string

const (
	KindTextRecords    Kind = "text_records"
	KindGenericRecords Kind = "generic_records"
	KindSingleObject   Kind = "single_object"
	KindOpaque         Kind = "opaque"
)

// Payload is a classified tool result. The set of implementations is closed.
type Payload interface {
	Kind() Kind
	Format() (string, error)
	isPayload()
}

// TextRecords is a list of {"type":"text","text":...} records.
type TextRecords struct {
	Texts []string
}

// GenericRecords is a list of mapping records that are not all text records.
type GenericRecords struct {
	Records []any
}

// SingleObject is one mapping.
type SingleObject struct {
	Object any
}

// Opaque is anything else.
type Opaque struct {
	Value any
}

func (TextRecords) Kind() Kind    { return KindTextRecords }
func (GenericRecords) Kind() Kind { return KindGenericRecords }
func (SingleObject) Kind() Kind   { return KindSingleObject }
func (Opaque) Kind() Kind         { return KindOpaque }

func (TextRecords) isPayload()    {}
func (GenericRecords) isPayload() {}
func (SingleObject) isPayload()   {}
func (Opaque) isPayload()         {}

func (p TextRecords) Format() (string, error) {
	return strings.Join(p.Texts, "\n"), nil
}

func (p GenericRecords) Format() (string, error) {
	return encodeJSON(KindGenericRecords, p.Records)
}

func (p SingleObject) Format() (string, error) {
	return encodeJSON(KindSingleObject, p.Object)
}

func (p Opaque) Format() (string, error) {
	if p.Value == nil {
		return "", nil
	}
	switch typed := p.Value.(type) {
	case string:
		return typed, nil
	case []byte:
		return string(typed), nil
	case json.RawMessage:
		return string(typed), nil
	}
	return fmt.Sprint(p.Value), nil
}

// Format classifies payload and renders it as text.
func Format(payload any) (string, error) {
	return Classify(payload).Format()
}

// Classify sorts a payload into one of the recognized shapes. A sequence of
// mappings is a record list; an empty sequence is an empty transcript.
func Classify(payload any) Payload {
	if payload == nil {
		return Opaque{}
	}
	if records, ok := asRecords(payload); ok {
		if texts, ok := textsOf(records); ok {
			return TextRecords{Texts: texts}
		}
		return GenericRecords{Records: records}
	}
	if isMapping(payload) {
		return SingleObject{Object: payload}
	}
	return Opaque{Value: payload}
}

func asRecords(payload any) ([]any, bool) {
	switch typed := payload.(type) {
	case []map[string]any:
		out := make([]any, len(typed))
		for i, record := range typed {
			out[i] = record
		}
		return out, true
	case []any:
		for _, item := range typed {
			if !isMapping(item) {
				return nil, false
			}
		}
		return typed, true
	}

	value := reflect.ValueOf(payload)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return nil, false
	}
	// Byte slices are data, not sequences.
	if value.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, value.Len())
	for i := 0; i < value.Len(); i++ {
		item := value.Index(i).Interface()
		if !isMapping(item) {
			return nil, false
		}
		out[i] = item
	}
	return out, true
}

func isMapping(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.(map[string]any); ok {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Map && objectKey(rv.Type().Key())
}

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// objectKey reports whether encoding/json renders maps keyed by t as JSON
// objects.
func objectKey(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return t.Implements(textMarshalerType)
}

func textsOf(records []any) ([]string, bool) {
	texts := make([]string, 0, len(records))
	for _, record := range records {
		kind, ok := field(record, "type")
		if !ok || kind != "text" {
			return nil, false
		}
		text, ok := field(record, "text")
		if !ok {
			return nil, false
		}
		str, ok := text.(string)
		if !ok {
			return nil, false
		}
		texts = append(texts, str)
	}
	return texts, true
}

func field(record any, key string) (any, bool) {
	if typed, ok := record.(map[string]any); ok {
		value, ok := typed[key]
		return value, ok
	}
	rv := reflect.ValueOf(record)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	value := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !value.IsValid() {
		return nil, false
	}
	return value.Interface(), true
}

func encodeJSON(kind Kind, value any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return "", &domain.SerializationError{Kind: string(kind), Cause: err}
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
