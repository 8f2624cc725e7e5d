package narrative

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a validated narrative. Text keys hold a string, list keys
// hold a []string. Keys outside the schema are dropped.
type Document map[string]any

// Text returns a text field.
func (d Document) Text(key string) string {
	s, _ := d[key].(string)
	return s
}

// List returns a list field.
func (d Document) List(key string) []string {
	l, _ := d[key].([]string)
	return l
}

// Words counts whitespace-separated words across the schema's keys.
func (d Document) Words(s *Schema) int {
	n := 0
	for _, f := range s.Fields {
		if f.List {
			for _, item := range d.List(f.Key) {
				n += len(strings.Fields(item))
			}
			continue
		}
		n += len(strings.Fields(d.Text(f.Key)))
	}
	return n
}

// =============================================================================
// VALIDATION
// =============================================================================

// FailureKind classifies a validation failure.
type FailureKind string

const (
	FailParse       FailureKind = "parse"
	FailMissingKey  FailureKind = "missing_key"
	FailWrongType   FailureKind = "wrong_type"
	FailWrongLength FailureKind = "wrong_length"
	FailEmptyValue  FailureKind = "empty_value"
	FailOverBudget  FailureKind = "over_budget"
)

// ValidationError reports why raw output does not satisfy a schema.
type ValidationError struct {
	Kind   FailureKind
	Key    string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Key, e.Detail)
}

// Validate parses raw as a JSON object and checks it against s: every
// required key present, correct types, list lengths within bounds, no empty
// strings, total words within the budget.
func Validate(s *Schema, raw string) (Document, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return nil, &ValidationError{Kind: FailParse, Detail: err.Error()}
	}
	if obj == nil {
		return nil, &ValidationError{Kind: FailParse, Detail: "not a JSON object"}
	}

	doc := make(Document, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := obj[f.Key]
		if !ok {
			return nil, &ValidationError{Kind: FailMissingKey, Key: f.Key, Detail: "required key is missing"}
		}
		if f.List {
			items, err := decodeList(f, v)
			if err != nil {
				return nil, err
			}
			doc[f.Key] = items
			continue
		}
		var text string
		if err := json.Unmarshal(v, &text); err != nil {
			return nil, &ValidationError{Kind: FailWrongType, Key: f.Key, Detail: "must be a string"}
		}
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Kind: FailEmptyValue, Key: f.Key, Detail: "must not be empty"}
		}
		doc[f.Key] = text
	}

	if words := doc.Words(s); words > s.WordBudget {
		return nil, &ValidationError{
			Kind:   FailOverBudget,
			Detail: fmt.Sprintf("total words %d exceeds %d limit", words, s.WordBudget),
		}
	}
	return doc, nil
}

func decodeList(f Field, v json.RawMessage) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(v, &raw); err != nil || raw == nil {
		return nil, &ValidationError{Kind: FailWrongType, Key: f.Key, Detail: "must be an array"}
	}
	if len(raw) < f.Min || len(raw) > f.Max {
		return nil, &ValidationError{
			Kind:   FailWrongLength,
			Key:    f.Key,
			Detail: fmt.Sprintf("must have %s items, got %d", f.lengthRule(), len(raw)),
		}
	}
	items := make([]string, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &items[i]); err != nil {
			return nil, &ValidationError{Kind: FailWrongType, Key: f.Key, Detail: fmt.Sprintf("item %d must be a string", i)}
		}
		if strings.TrimSpace(items[i]) == "" {
			return nil, &ValidationError{Kind: FailEmptyValue, Key: f.Key, Detail: fmt.Sprintf("item %d is empty", i)}
		}
	}
	return items, nil
}
