package validator

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/types"
)

// ErrInvalidReview wraps every review validation failure.
var ErrInvalidReview = errors.New("invalid review")

type ReviewValidator struct {
	roster  types.Roster
	maxText int
}

func NewReviewValidator(roster types.Roster) *ReviewValidator {
	if len(roster) == 0 {
		roster = types.DefaultRoster()
	}
	return &ReviewValidator{roster: roster, maxText: 2000}
}

func (v *ReviewValidator) Validate(r api.Review) error {
	if r.SessionID <= 0 {
		return fmt.Errorf("%w: no session id; rate a run that reported one", ErrInvalidReview)
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrInvalidReview, r.Rating)
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("%w: select at least one agent to review", ErrInvalidReview)
	}

	seen := make(map[types.AgentName]bool, len(r.Agents))
	for i, name := range r.Agents {
		if !v.roster.Contains(name) {
			return fmt.Errorf("%w: unknown agent '%s' at index %d", ErrInvalidReview, name, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: agent '%s' listed twice", ErrInvalidReview, name)
		}
		seen[name] = true
	}

	if utf8.RuneCountInString(r.Text) > v.maxText {
		return fmt.Errorf("%w: review text too long: maximum %d characters", ErrInvalidReview, v.maxText)
	}
	if utf8.RuneCountInString(r.Suggestions) > v.maxText {
		return fmt.Errorf("%w: suggestions too long: maximum %d characters", ErrInvalidReview, v.maxText)
	}
	return nil
}
