package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

// AnonymousUser is the user id sent when none is configured.
const AnonymousUser = "anonymous"

// AgentResultID derives the backend's per-agent result id: the last four
// digits of the session id followed by the sum of the character codes of
// the first and last characters of the agent name, lowercased with all
// whitespace removed.
func AgentResultID(agent types.AgentName, sessionID int64) int64 {
	var b strings.Builder
	for _, r := range string(agent) {
		if !unicode.IsSpace(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	name := []rune(b.String())

	base := strconv.FormatInt(sessionID, 10)
	if len(base) > 4 {
		base = base[len(base)-4:]
	}

	code := 0
	if len(name) > 0 {
		code = int(name[0]) + int(name[len(name)-1])
	}

	id, err := strconv.ParseInt(base+strconv.Itoa(code), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Review is one rating applied to several agents of a session.
type Review struct {
	SessionID   int64
	Agents      []types.AgentName
	Rating      int
	Text        string
	Suggestions string
	Helpful     []string
	UserID      string
}

// Submissions expands a review into one submission per agent.
func (r Review) Submissions() []types.RatingSubmission {
	userID := r.UserID
	if userID == "" {
		userID = AnonymousUser
	}

	subs := make([]types.RatingSubmission, 0, len(r.Agents))
	for _, agent := range r.Agents {
		sub := types.RatingSubmission{
			SessionID:      r.SessionID,
			AgentResultID:  AgentResultID(agent, r.SessionID),
			AgentName:      string(agent),
			Rating:         r.Rating,
			HelpfulAspects: r.Helpful,
			WouldRecommend: r.Rating >= 4,
			UserID:         userID,
		}
		if r.Text != "" {
			text := r.Text
			sub.ReviewText = &text
		}
		if r.Suggestions != "" {
			s := r.Suggestions
			sub.ImprovementSuggestions = &s
		}
		subs = append(subs, sub)
	}
	return subs
}

// SubmitRating posts one rating.
func (c *Client) SubmitRating(ctx context.Context, sub types.RatingSubmission) (*types.RatingResult, error) {
	resp, err := c.postJSON(ctx, c.httpClient, "/ratings/submit", sub, "application/json")
	if err != nil {
		return nil, fmt.Errorf("submit rating for %s: %w", sub.AgentName, err)
	}
	defer resp.Body.Close()

	var result types.RatingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rating response: %w", err)
	}
	return &result, nil
}

// SubmitReview posts one rating per selected agent. It stops at the first
// failure and returns the results gathered so far.
func (c *Client) SubmitReview(ctx context.Context, review Review) ([]types.RatingResult, error) {
	subs := review.Submissions()
	results := make([]types.RatingResult, 0, len(subs))

	for _, sub := range subs {
		res, err := c.SubmitRating(ctx, sub)
		if err != nil {
			return results, err
		}
		c.logger.Info("Rating submitted",
			zap.String("agent", sub.AgentName),
			zap.Int64("agent_result_id", sub.AgentResultID),
			zap.Int64("rating_id", res.RatingID))
		results = append(results, *res)
	}
	return results, nil
}

// SessionRatings is the backend's view of ratings for one session.
type SessionRatings struct {
	SessionID      int64                        `json:"session_id"`
	RatingsByAgent map[string][]json.RawMessage `json:"ratings_by_agent"`
	TotalRatings   int                          `json:"total_ratings"`
}

// GetSessionRatings fetches every rating recorded for a session.
func (c *Client) GetSessionRatings(ctx context.Context, sessionID int64) (*SessionRatings, error) {
	var out SessionRatings
	if err := c.getJSON(ctx, fmt.Sprintf("/ratings/session/%d", sessionID), &out); err != nil {
		return nil, fmt.Errorf("get session ratings: %w", err)
	}
	return &out, nil
}
