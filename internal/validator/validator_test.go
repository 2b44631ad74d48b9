package validator

import (
	"strings"
	"testing"

	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/types"
	"github.com/stretchr/testify/assert"
)

func validRequest() types.AnalysisRequest {
	return types.AnalysisRequest{
		StrategicQuestion: "How should we enter the Indian EV charging market?",
		TimeFrame:         "medium_term",
		Region:            "asia",
	}
}

func TestInputValidator_Validate(t *testing.T) {
	v := NewInputValidator()

	tests := []struct {
		name    string
		mutate  func(r *types.AnalysisRequest)
		wantErr string
	}{
		{"valid", func(r *types.AnalysisRequest) {}, ""},
		{"valid with prompt and scope", func(r *types.AnalysisRequest) {
			r.Prompt = "Focus on regulation"
			r.Scope = []string{"market", "policy"}
		}, ""},
		{"question too short", func(r *types.AnalysisRequest) { r.StrategicQuestion = "Grow?" }, "too short"},
		{"question blank", func(r *types.AnalysisRequest) { r.StrategicQuestion = strings.Repeat(" ", 30) }, "strategic question is required"},
		{"question too long", func(r *types.AnalysisRequest) { r.StrategicQuestion = strings.Repeat("a", 501) }, "too long"},
		{"multibyte counts characters", func(r *types.AnalysisRequest) { r.StrategicQuestion = strings.Repeat("é", 500) }, ""},
		{"invalid utf8", func(r *types.AnalysisRequest) { r.StrategicQuestion = "How do we grow \xff\xfe in Europe quickly?" }, "UTF-8"},
		{"missing time frame", func(r *types.AnalysisRequest) { r.TimeFrame = "" }, "time frame is required"},
		{"missing region", func(r *types.AnalysisRequest) { r.Region = " " }, "region is required"},
		{"prompt too long", func(r *types.AnalysisRequest) { r.Prompt = strings.Repeat("p", 501) }, "additional instructions too long"},
		{"empty scope entry", func(r *types.AnalysisRequest) { r.Scope = []string{"market", ""} }, "scope entry 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := v.Validate(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInputValidator_Sanitize(t *testing.T) {
	v := NewInputValidator()

	tests := []struct {
		input    string
		expected string
	}{
		{"  hello   world  ", "hello world"},
		{"line\none\ttab", "line one tab"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := v.Sanitize(tt.input); got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestInputValidator_SanitizeRequest(t *testing.T) {
	v := NewInputValidator()
	got := v.SanitizeRequest(types.AnalysisRequest{
		StrategicQuestion: "  What   next\nfor us? ",
		TimeFrame:         " long_term ",
		Region:            "north   america",
		Prompt:            "  line one\nline two  ",
		Scope:             []string{" market ", "  ", "tech"},
	})

	assert.Equal(t, "What next for us?", got.StrategicQuestion)
	assert.Equal(t, "long_term", got.TimeFrame)
	assert.Equal(t, "north america", got.Region)
	assert.Equal(t, "line one\nline two", got.Prompt)
	assert.Equal(t, []string{"market", "tech"}, got.Scope)

	assert.Nil(t, v.SanitizeRequest(validRequest()).Scope)
}

func TestReviewValidator(t *testing.T) {
	v := NewReviewValidator(nil)

	valid := api.Review{
		SessionID: 1234,
		Agents:    []types.AgentName{types.AgentBestPractices, types.AgentHighImpact},
		Rating:    4,
	}
	assert.NoError(t, v.Validate(valid))

	tests := []struct {
		name    string
		mutate  func(r *api.Review)
		wantErr string
	}{
		{"no session", func(r *api.Review) { r.SessionID = 0 }, "no session id"},
		{"rating zero", func(r *api.Review) { r.Rating = 0 }, "between 1 and 5"},
		{"rating six", func(r *api.Review) { r.Rating = 6 }, "between 1 and 5"},
		{"no agents", func(r *api.Review) { r.Agents = nil }, "at least one agent"},
		{"unknown agent", func(r *api.Review) { r.Agents = []types.AgentName{"Oracle"} }, "unknown agent 'Oracle'"},
		{"duplicate agent", func(r *api.Review) {
			r.Agents = []types.AgentName{types.AgentBackcasting, types.AgentBackcasting}
		}, "listed twice"},
		{"long text", func(r *api.Review) { r.Text = strings.Repeat("x", 2001) }, "review text too long"},
		{"long suggestions", func(r *api.Review) { r.Suggestions = strings.Repeat("x", 2001) }, "suggestions too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Agents = append([]types.AgentName(nil), valid.Agents...)
			tt.mutate(&r)
			err := v.Validate(r)
			assert.ErrorIs(t, err, ErrInvalidReview)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
