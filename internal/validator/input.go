package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/stratos/foresight/internal/types"
)

// spaceRegexp is compiled once at package init and reused across all Sanitize calls.
var spaceRegexp = regexp.MustCompile(`\s+`)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid analysis request")

type InputValidator struct {
	minQuestion int
	maxQuestion int
	maxPrompt   int
	maxField    int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		minQuestion: 20,
		maxQuestion: 500,
		maxPrompt:   500,
		maxField:    100,
	}
}

// Validate checks a request after sanitizing. Lengths count characters,
// not bytes.
func (v *InputValidator) Validate(req types.AnalysisRequest) error {
	if err := v.text("strategic question", req.StrategicQuestion, v.minQuestion, v.maxQuestion); err != nil {
		return err
	}
	if err := v.text("time frame", req.TimeFrame, 1, v.maxField); err != nil {
		return err
	}
	if err := v.text("region", req.Region, 1, v.maxField); err != nil {
		return err
	}
	if req.Prompt != "" {
		if err := v.text("additional instructions", req.Prompt, 0, v.maxPrompt); err != nil {
			return err
		}
	}
	for i, s := range req.Scope {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: scope entry %d is empty", ErrInvalidRequest, i)
		}
	}
	return nil
}

func (v *InputValidator) text(field, s string, minLen, maxLen int) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s has invalid UTF-8 encoding", ErrInvalidRequest, field)
	}
	if minLen > 0 && strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}

	n := utf8.RuneCountInString(s)
	if n < minLen {
		return fmt.Errorf("%w: %s too short: minimum %d characters", ErrInvalidRequest, field, minLen)
	}
	if n > maxLen {
		return fmt.Errorf("%w: %s too long: maximum %d characters", ErrInvalidRequest, field, maxLen)
	}
	return nil
}

func (v *InputValidator) Sanitize(query string) string {
	query = strings.TrimSpace(query)
	query = spaceRegexp.ReplaceAllString(query, " ")
	return query
}

// SanitizeRequest collapses whitespace in every single-line field. The
// prompt keeps its line breaks and is only trimmed.
func (v *InputValidator) SanitizeRequest(req types.AnalysisRequest) types.AnalysisRequest {
	req.StrategicQuestion = v.Sanitize(req.StrategicQuestion)
	req.TimeFrame = v.Sanitize(req.TimeFrame)
	req.Region = v.Sanitize(req.Region)
	req.Prompt = strings.TrimSpace(req.Prompt)

	var scope []string
	for _, s := range req.Scope {
		if s = v.Sanitize(s); s != "" {
			scope = append(scope, s)
		}
	}
	req.Scope = scope
	return req
}
