package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/stratos/foresight/internal/types"
)

// HistoryPageSize matches the page size of the web history view.
const HistoryPageSize = 12

type historyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Sessions   []types.HistorySession `json:"sessions"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	} `json:"data"`
}

// History fetches one page of past analysis sessions.
func (c *Client) History(ctx context.Context, f types.HistoryFilter) (*types.HistoryPage, error) {
	if f.Limit <= 0 {
		f.Limit = HistoryPageSize
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(f.Limit))
	q.Set("offset", strconv.Itoa(f.Offset))
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Region != "" {
		q.Set("region", f.Region)
	}

	var resp historyResponse
	if err := c.getJSON(ctx, "/api/analysis-history?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	if resp.Status != "success" {
		msg := resp.Message
		if msg == "" {
			msg = "unexpected status " + strconv.Quote(resp.Status)
		}
		return nil, fmt.Errorf("get history: %s", msg)
	}

	page := &types.HistoryPage{
		Sessions: resp.Data.Sessions,
		Total:    resp.Data.Pagination.Total,
		HasMore:  resp.Data.Pagination.HasMore,
	}
	if page.Total == 0 {
		page.Total = f.Offset + len(page.Sessions)
	}
	return page, nil
}
