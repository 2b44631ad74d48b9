package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/stratos/foresight/internal/types"
)

// Variant names the payload shape a record matched.
type Variant int

const (
	VariantLegacyError Variant = iota
	VariantError
	VariantNestedSuccess
	VariantFlatSuccess
	VariantOpaque
	VariantInvalid
)

// String returns the variant label used in logs.
func (v Variant) String() string {
	names := [...]string{
		"legacy_error",
		"error",
		"nested_success",
		"flat_success",
		"opaque",
		"invalid",
	}
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown"
}

const (
	legacyErrorPrefix   = "Error:"
	defaultErrorMessage = "Unknown error occurred"
	invalidFormatError  = "Invalid data format received"

	// minOpaqueContent is the length a string must exceed to be taken as
	// content when scanning an unrecognised object.
	minOpaqueContent = 10
)

// contentFields is the priority order for picking display text.
var contentFields = []string{"formatted_output", "analysis", "response", "raw_response"}

// opaquePaths are probed, in order, for unrecognised objects.
var opaquePaths = [][]string{
	{"formatted_output"},
	{"analysis"},
	{"response"},
	{"raw_response"},
	{"content"},
	{"text"},
	{"output"},
	{"result"},
	{"data", "formatted_output"},
	{"data", "analysis"},
	{"data", "response"},
	{"data", "raw_response"},
	{"data", "data", "formatted_output"},
	{"data", "data", "analysis"},
	{"data", "data", "response"},
	{"result", "formatted_output"},
	{"result", "analysis"},
	{"result", "response"},
}

// Resolution is the outcome of classifying one agent payload.
type Resolution struct {
	Variant Variant
	Status  types.AgentStatus
	Content string
	Raw     string
	Error   string
}

// Classify resolves a payload to a terminal status and display content.
// The first matching variant wins: legacy "Error:" strings, explicit error
// objects, success with nested data, success with flat fields, any other
// object, and finally an invalid-format error.
func Classify(raw json.RawMessage) Resolution {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return invalid()
	}

	switch p := v.(type) {
	case string:
		if strings.HasPrefix(p, legacyErrorPrefix) {
			msg := strings.TrimSpace(strings.TrimPrefix(p, legacyErrorPrefix))
			if msg == "" {
				msg = defaultErrorMessage
			}
			return Resolution{
				Variant: VariantLegacyError,
				Status:  types.StatusError,
				Error:   msg,
				Raw:     p,
			}
		}
		return invalid()

	case map[string]any:
		return classifyObject(p)
	}

	return invalid()
}

func classifyObject(obj map[string]any) Resolution {
	status, _ := obj["status"].(string)

	switch status {
	case "error":
		msg, _ := obj["error"].(string)
		if strings.TrimSpace(msg) == "" {
			msg = defaultErrorMessage
		}
		return Resolution{
			Variant: VariantError,
			Status:  types.StatusError,
			Error:   msg,
			Raw:     msg,
		}

	case "success":
		if data, ok := obj["data"].(map[string]any); ok {
			content, found := pickContent(data)
			if !found {
				content = prettyJSON(data)
			}
			return Resolution{
				Variant: VariantNestedSuccess,
				Status:  types.StatusSuccess,
				Content: content,
				Raw:     rawContent(obj, content),
			}
		}

		content, found := pickContent(obj)
		if !found {
			if s, ok := obj["data"].(string); ok && strings.TrimSpace(s) != "" {
				content = s
			} else {
				content = prettyJSON(obj)
			}
		}
		return Resolution{
			Variant: VariantFlatSuccess,
			Status:  types.StatusSuccess,
			Content: content,
			Raw:     rawContent(obj, content),
		}
	}

	content := scanOpaque(obj)
	if content == "" {
		content = prettyJSON(obj)
	}
	return Resolution{
		Variant: VariantOpaque,
		Status:  types.StatusSuccess,
		Content: content,
		Raw:     rawContent(obj, content),
	}
}

// pickContent returns the first non-empty content field of obj, then of a
// nested obj["data"] object.
func pickContent(obj map[string]any) (string, bool) {
	if s, ok := firstString(obj); ok {
		return s, true
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		if s, ok := firstString(inner); ok {
			return s, true
		}
	}
	return "", false
}

func firstString(obj map[string]any) (string, bool) {
	for _, key := range contentFields {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func scanOpaque(obj map[string]any) string {
	for _, path := range opaquePaths {
		if s, ok := lookup(obj, path); ok && utf8.RuneCountInString(s) > minOpaqueContent {
			return s
		}
	}
	return ""
}

func lookup(obj map[string]any, path []string) (string, bool) {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur = m[key]
	}
	s, ok := cur.(string)
	return s, ok
}

// rawContent prefers an explicit raw_response, nested or top level.
func rawContent(obj map[string]any, fallback string) string {
	if s, ok := lookup(obj, []string{"data", "raw_response"}); ok && s != "" {
		return s
	}
	if s, ok := obj["raw_response"].(string); ok && s != "" {
		return s
	}
	return fallback
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func invalid() Resolution {
	return Resolution{
		Variant: VariantInvalid,
		Status:  types.StatusError,
		Error:   invalidFormatError,
	}
}
