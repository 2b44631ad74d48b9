package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stratos/foresight/internal/types"
)

// templateList accepts both {"templates": [...]} and the enveloped
// {"status": ..., "data": {"templates": [...]}} forms.
type templateList struct {
	Templates       []types.Template `json:"templates"`
	Recommendations []types.Template `json:"recommendations"`
	Data            struct {
		Templates       []types.Template `json:"templates"`
		Recommendations []types.Template `json:"recommendations"`
	} `json:"data"`
}

func (l templateList) all() []types.Template {
	for _, ts := range [][]types.Template{l.Templates, l.Data.Templates, l.Recommendations, l.Data.Recommendations} {
		if len(ts) > 0 {
			return ts
		}
	}
	return nil
}

// Templates fetches the backend's template library.
func (c *Client) Templates(ctx context.Context, limit int) ([]types.Template, error) {
	path := "/api/templates"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var list templateList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}
	return list.all(), nil
}

// Recommendations asks the backend for templates matching a question.
func (c *Client) Recommendations(ctx context.Context, question, userID string) ([]types.Template, error) {
	if userID == "" {
		userID = AnonymousUser
	}
	body := map[string]string{
		"strategic_question": question,
		"user_id":            userID,
	}

	resp, err := c.postJSON(ctx, c.httpClient, "/api/get-template-recommendations", body, "application/json")
	if err != nil {
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	defer resp.Body.Close()

	var list templateList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return list.all(), nil
}

// TrackQueryPattern records a submitted question for the backend's
// suggestion engine.
func (c *Client) TrackQueryPattern(ctx context.Context, p types.QueryPattern) error {
	if p.UserID == "" {
		p.UserID = AnonymousUser
	}

	resp, err := c.postJSON(ctx, c.httpClient, "/api/track-query-pattern", p, "application/json")
	if err != nil {
		return fmt.Errorf("track query pattern: %w", err)
	}
	resp.Body.Close()
	return nil
}
