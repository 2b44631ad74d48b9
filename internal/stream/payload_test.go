package stream

import (
	"encoding/json"
	"testing"

	"github.com/stratos/foresight/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestClassify_Variants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		variant Variant
		status  types.AgentStatus
		content string
		errMsg  string
	}{
		{
			name:    "legacy error string",
			payload: `"Error: timeout"`,
			variant: VariantLegacyError,
			status:  types.StatusError,
			errMsg:  "timeout",
		},
		{
			name:    "error object",
			payload: `{"status":"error","error":"model overloaded"}`,
			variant: VariantError,
			status:  types.StatusError,
			errMsg:  "model overloaded",
		},
		{
			name:    "error object without message",
			payload: `{"status":"error"}`,
			variant: VariantError,
			status:  types.StatusError,
			errMsg:  "Unknown error occurred",
		},
		{
			name:    "nested success formatted_output",
			payload: `{"status":"success","data":{"formatted_output":"# Title\n\nBody","raw_response":"raw"}}`,
			variant: VariantNestedSuccess,
			status:  types.StatusSuccess,
			content: "# Title\n\nBody",
		},
		{
			name:    "nested success falls back to analysis",
			payload: `{"status":"success","data":{"formatted_output":"","analysis":"deep dive"}}`,
			variant: VariantNestedSuccess,
			status:  types.StatusSuccess,
			content: "deep dive",
		},
		{
			name:    "nested data.data",
			payload: `{"status":"success","data":{"data":{"response":"inner"}}}`,
			variant: VariantNestedSuccess,
			status:  types.StatusSuccess,
			content: "inner",
		},
		{
			name:    "flat success",
			payload: `{"status":"success","response":"flat text"}`,
			variant: VariantFlatSuccess,
			status:  types.StatusSuccess,
			content: "flat text",
		},
		{
			name:    "opaque object with long string",
			payload: `{"result":{"formatted_output":"a long enough answer"}}`,
			variant: VariantOpaque,
			status:  types.StatusSuccess,
			content: "a long enough answer",
		},
		{
			name:    "opaque short strings ignored",
			payload: `{"content":"short"}`,
			variant: VariantOpaque,
			status:  types.StatusSuccess,
			content: "{\n  \"content\": \"short\"\n}",
		},
		{
			name:    "null",
			payload: `null`,
			variant: VariantInvalid,
			status:  types.StatusError,
			errMsg:  "Invalid data format received",
		},
		{
			name:    "number",
			payload: `42`,
			variant: VariantInvalid,
			status:  types.StatusError,
			errMsg:  "Invalid data format received",
		},
		{
			name:    "plain string",
			payload: `"all good"`,
			variant: VariantInvalid,
			status:  types.StatusError,
			errMsg:  "Invalid data format received",
		},
		{
			name:    "array",
			payload: `["a"]`,
			variant: VariantInvalid,
			status:  types.StatusError,
			errMsg:  "Invalid data format received",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(json.RawMessage(tt.payload))
			assert.Equal(t, tt.variant, res.Variant)
			assert.Equal(t, tt.status, res.Status)
			if tt.content != "" {
				assert.Equal(t, tt.content, res.Content)
			}
			assert.Equal(t, tt.errMsg, res.Error)
		})
	}
}

func TestClassify_NestedAndFlatPickSameField(t *testing.T) {
	fieldSets := []map[string]string{
		{"formatted_output": "F", "analysis": "A", "response": "R", "raw_response": "W"},
		{"analysis": "A", "response": "R", "raw_response": "W"},
		{"response": "R", "raw_response": "W"},
		{"raw_response": "W"},
		{"formatted_output": "", "response": "R"},
	}

	for _, fields := range fieldSets {
		data := map[string]any{}
		for k, v := range fields {
			data[k] = v
		}

		nested, _ := json.Marshal(map[string]any{"status": "success", "data": data})
		flat := map[string]any{"status": "success"}
		for k, v := range data {
			flat[k] = v
		}
		flatJSON, _ := json.Marshal(flat)

		n := Classify(nested)
		f := Classify(flatJSON)
		assert.Equal(t, VariantNestedSuccess, n.Variant)
		assert.Equal(t, VariantFlatSuccess, f.Variant)
		assert.Equal(t, n.Content, f.Content, "fields %v", fields)
	}
}

func TestClassify_RawContent(t *testing.T) {
	res := Classify(json.RawMessage(`{"status":"success","data":{"formatted_output":"nice","raw_response":"raw text"}}`))
	assert.Equal(t, "raw text", res.Raw)

	res = Classify(json.RawMessage(`{"status":"success","data":{"formatted_output":"nice"}}`))
	assert.Equal(t, "nice", res.Raw)

	res = Classify(json.RawMessage(`"Error: boom"`))
	assert.Equal(t, "Error: boom", res.Raw)
}

func TestClassify_NestedFallbackDumpsData(t *testing.T) {
	res := Classify(json.RawMessage(`{"status":"success","data":{"score":3}}`))
	assert.Equal(t, VariantNestedSuccess, res.Variant)
	assert.JSONEq(t, `{"score":3}`, res.Content)
}

func TestVariant_String(t *testing.T) {
	assert.Equal(t, "legacy_error", VariantLegacyError.String())
	assert.Equal(t, "opaque", VariantOpaque.String())
	assert.Equal(t, "unknown", Variant(99).String())
}
