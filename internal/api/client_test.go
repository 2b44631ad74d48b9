package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stratos/foresight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func TestAnalyze_StreamsBody(t *testing.T) {
	var got types.AnalysisRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, NDJSONContentType, r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", NDJSONContentType)
		io.WriteString(w, `{"High Impact": "Error: timeout"}`+"\n")
	})

	body, err := c.Analyze(context.Background(), types.AnalysisRequest{
		StrategicQuestion: "How do we enter the EV market?",
		TimeFrame:         "medium_term",
		Region:            "europe",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"High Impact": "Error: timeout"}`+"\n", string(data))
	assert.Equal(t, "europe", got.Region)
	assert.Empty(t, got.Prompt)
}

func TestAnalyze_OmitsEmptyOptionalFields(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	})

	body, err := c.Analyze(context.Background(), types.AnalysisRequest{StrategicQuestion: "q", TimeFrame: "t", Region: "r"})
	require.NoError(t, err)
	body.Close()

	assert.NotContains(t, raw, "prompt")
	assert.NotContains(t, raw, "scope")
	assert.Contains(t, raw, "strategic_question")
}

func TestAnalyze_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"orchestrator crashed"}`)
	})

	_, err := c.Analyze(context.Background(), types.AnalysisRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStream)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "orchestrator crashed", se.Detail())
	assert.Contains(t, err.Error(), "status 500")
}

func TestAnalyze_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Analyze(context.Background(), types.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrStream)
}

func TestStatusError_DetailFallback(t *testing.T) {
	assert.Equal(t, "plain text", (&StatusError{Code: 502, Body: " plain text \n"}).Detail())
	assert.Equal(t, `[{"msg":"field required"}]`, (&StatusError{Code: 422, Body: `{"detail":[{"msg":"field required"}]}`}).Detail())
	assert.Equal(t, "backend returned status 503", (&StatusError{Code: 503}).Error())
}

func TestGeneratePDF(t *testing.T) {
	var got types.ExportRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-pdf", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake")
	})

	data, err := c.GeneratePDF(context.Background(), types.ExportRequest{
		AnalysisData: map[types.AgentName]json.RawMessage{
			types.AgentBackcasting: json.RawMessage(`{"status":"success","response":"x"}`),
		},
		StrategicQuestion: "q",
		TimeFrame:         "long_term",
		Region:            "global",
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
	assert.JSONEq(t, `{"status":"success","response":"x"}`, string(got.AnalysisData[types.AgentBackcasting]))
}

func TestGeneratePDF_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.GeneratePDF(context.Background(), types.ExportRequest{})
	assert.Error(t, err)
}

func TestSavePDF(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := SavePDF(dir, []byte("%PDF"), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "strategic_analysis_20260304_050607.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

func TestAgentResultID(t *testing.T) {
	tests := []struct {
		agent     types.AgentName
		sessionID int64
		want      int64
	}{
		// "bestpractices": 'b'(98) + 's'(115) = 213
		{types.AgentBestPractices, 123456, 3456213},
		// "highimpact": 'h'(104) + 't'(116) = 220
		{types.AgentHighImpact, 42, 42220},
		// "backcasting": 'b'(98) + 'g'(103) = 201
		{types.AgentBackcasting, 1700000009999, 9999201},
	}

	for _, tt := range tests {
		t.Run(string(tt.agent), func(t *testing.T) {
			assert.Equal(t, tt.want, AgentResultID(tt.agent, tt.sessionID))
		})
	}
}

func TestReview_Submissions(t *testing.T) {
	r := Review{
		SessionID: 77,
		Agents:    []types.AgentName{types.AgentProblemExplorer, types.AgentHighImpact},
		Rating:    4,
		Text:      "Useful framing",
	}

	subs := r.Submissions()
	require.Len(t, subs, 2)
	for _, s := range subs {
		assert.Equal(t, int64(77), s.SessionID)
		assert.True(t, s.WouldRecommend)
		assert.Equal(t, AnonymousUser, s.UserID)
		require.NotNil(t, s.ReviewText)
		assert.Equal(t, "Useful framing", *s.ReviewText)
		assert.Nil(t, s.ImprovementSuggestions)
	}

	r.Rating = 3
	assert.False(t, r.Submissions()[0].WouldRecommend)
}

func TestSubmitReview(t *testing.T) {
	var agents []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ratings/submit", r.URL.Path)
		var sub map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		agents = append(agents, sub["agent_name"].(string))
		assert.Contains(t, sub, "review_text")
		assert.Nil(t, sub["review_text"])

		json.NewEncoder(w).Encode(map[string]any{
			"status":    "success",
			"message":   "Rating submitted successfully",
			"rating_id": len(agents),
		})
	})

	results, err := c.SubmitReview(context.Background(), Review{
		SessionID: 5,
		Agents:    []types.AgentName{types.AgentBestPractices, types.AgentBackcasting},
		Rating:    5,
		UserID:    "u1",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[1].RatingID)
	assert.Equal(t, []string{"Best Practices", "Backcasting"}, agents)
}

func TestSubmitReview_StopsOnFailure(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"detail":"Database not available"}`)
	})

	results, err := c.SubmitReview(context.Background(), Review{
		SessionID: 1,
		Agents:    types.DefaultRoster(),
		Rating:    2,
	})
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "Database not available")
}

func TestGetSessionRatings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ratings/session/9", r.URL.Path)
		io.WriteString(w, `{"session_id":9,"ratings_by_agent":{"Backcasting":[{"rating":5}]},"total_ratings":1}`)
	})

	got, err := c.GetSessionRatings(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRatings)
	assert.Len(t, got.RatingsByAgent["Backcasting"], 1)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analysis-history", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "12", q.Get("limit"))
		assert.Equal(t, "24", q.Get("offset"))
		assert.Equal(t, "energy", q.Get("search"))
		assert.Equal(t, "completed", q.Get("status"))
		assert.False(t, q.Has("region"))

		io.WriteString(w, `{"status":"success","data":{"sessions":[{"id":3,"strategic_question":"Energy?","status":"completed"}],"pagination":{"total":25,"has_more":false}}}`)
	})

	page, err := c.History(context.Background(), types.HistoryFilter{Offset: 24, Search: "energy", Status: "completed"})
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, int64(3), page.Sessions[0].ID)
	assert.Equal(t, 25, page.Total)
	assert.False(t, page.HasMore)
}

func TestHistory_FailureStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error","message":"db offline"}`)
	})

	_, err := c.History(context.Background(), types.HistoryFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db offline")
}

func TestTemplates_BothShapes(t *testing.T) {
	bodies := []string{
		`{"templates":[{"name":"Market entry","strategic_question_template":"Enter {{REGION}}?"}]}`,
		`{"status":"success","data":{"templates":[{"name":"Market entry","strategic_question_template":"Enter {{REGION}}?"}]}}`,
	}

	for _, body := range bodies {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			io.WriteString(w, body)
		})

		ts, err := c.Templates(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, ts, 1)
		assert.Equal(t, "Market entry", ts[0].Name)
		assert.Equal(t, "Enter {{REGION}}?", ts[0].QuestionTemplate)
	}
}

func TestRecommendations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get-template-recommendations", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, AnonymousUser, body["user_id"])
		io.WriteString(w, `{"recommendations":[{"name":"Risk scan"}]}`)
	})

	ts, err := c.Recommendations(context.Background(), "Risks in Asia?", "")
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "Risk scan", ts[0].Name)
}

func TestTrackQueryPattern(t *testing.T) {
	var got types.QueryPattern
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"status":"success"}`)
	})

	err := c.TrackQueryPattern(context.Background(), types.QueryPattern{StrategicQuestion: "q", Region: "global"})
	require.NoError(t, err)
	assert.Equal(t, AnonymousUser, got.UserID)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, c.Ping(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := down.Ping(context.Background())
	var se *StatusError
	assert.True(t, errors.As(err, &se))
}
