package devserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/stream"
	"github.com/stratos/foresight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const question = "How should a mid-size utility enter grid-scale storage?"

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_RejectsNegativeDelay(t *testing.T) {
	_, err := New(Config{Delay: -time.Second})
	assert.Error(t, err)
}

func TestNew_MissingFixture(t *testing.T) {
	_, err := New(Config{Fixture: filepath.Join(t.TempDir(), "missing.ndjson")})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newServer(t, Config{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAnalyze_MissingQuestion(t *testing.T) {
	s := newServer(t, Config{})
	rec := do(s, http.MethodPost, "/analyze", `{"time_frame":"short_term"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"detail":"strategic_question is required"}`, rec.Body.String())
}

func TestAnalyze_GeneratedStream(t *testing.T) {
	s := newServer(t, Config{})
	rec := do(s, http.MethodPost, "/analyze",
		`{"strategic_question":"`+question+`","time_frame":"long_term","region":"asia"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.NDJSONContentType, rec.Header().Get(echo.HeaderContentType))

	var records []stream.Record
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		r, err := stream.DecodeRecord(sc.Bytes())
		require.NoError(t, err, sc.Text())
		records = append(records, r)
	}

	require.Len(t, records, 9)
	assert.Equal(t, stream.KindSessionInfo, records[0].Kind)
	assert.Equal(t, int64(1001), stream.ParseSessionInfo(records[0].Payload).ID)

	tagged := 0
	for i, agent := range types.DefaultRoster() {
		r := records[i+1]
		assert.Equal(t, agent, r.Agent)
		if r.Tagged {
			tagged++
		}
		res := stream.Classify(r.Payload)
		assert.Equal(t, types.StatusSuccess, res.Status, agent)
		assert.Contains(t, res.Content, question)
	}
	assert.Equal(t, 2, tagged)

	page := do(s, http.MethodGet, "/api/analysis-history", "")
	assert.Contains(t, page.Body.String(), `"status":"completed"`)
	assert.Contains(t, page.Body.String(), `"agent_results_count":8`)
}

func TestAnalyze_Fixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ndjson")
	body := strings.Join([]string{
		`{"session_info": {"session_id": 77}}`,
		``,
		`{"High Impact": "Error: upstream timeout"}`,
		`{"Backcasting": {"status": "success", "analysis": "Milestones"}}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := newServer(t, Config{Fixture: path})
	rec := do(s, http.MethodPost, "/analyze", `{"strategic_question":"`+question+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"session_id":1001`)
	assert.Equal(t, `{"High Impact": "Error: upstream timeout"}`, lines[1])
}

func TestAnalyze_ClientGoneStopsStream(t *testing.T) {
	s := newServer(t, Config{Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/analyze",
		strings.NewReader(`{"strategic_question":"`+question+`"}`)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(rec, req)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept streaming after the client left")
	}

	page := do(s, http.MethodGet, "/api/analysis-history?status=cancelled", "")
	assert.Contains(t, page.Body.String(), `"total":1`)
}

func TestGeneratePDF(t *testing.T) {
	s := newServer(t, Config{})

	rec := do(s, http.MethodPost, "/generate-pdf", `{"analysis_data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"No analysis data provided"}`, rec.Body.String())

	rec = do(s, http.MethodPost, "/generate-pdf",
		`{"analysis_data":{"Backcasting":{"status":"success"}},"strategic_question":"Grid (storage)","region":"europe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "strategic_analysis_")

	pdf := rec.Body.String()
	assert.True(t, strings.HasPrefix(pdf, "%PDF-1.4"))
	assert.True(t, strings.HasSuffix(pdf, "%%EOF\n"))
	assert.Contains(t, pdf, `Grid \(storage\)`)
	assert.Contains(t, pdf, "- Backcasting")
}

func TestRatings(t *testing.T) {
	s := newServer(t, Config{})

	rec := do(s, http.MethodPost, "/ratings/submit", `{"session_id":5,"agent_name":"Backcasting","rating":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(s, http.MethodPost, "/ratings/submit", `{"session_id":5,"agent_name":"Backcasting","rating":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res types.RatingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, int64(1), res.RatingID)

	do(s, http.MethodPost, "/ratings/submit", `{"session_id":6,"agent_name":"High Impact","rating":2}`)

	rec = do(s, http.MethodGet, "/ratings/session/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got api.SessionRatings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(5), got.SessionID)
	assert.Equal(t, 1, got.TotalRatings)
	assert.Len(t, got.RatingsByAgent["Backcasting"], 1)

	rec = do(s, http.MethodGet, "/ratings/session/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_FiltersAndPages(t *testing.T) {
	s := newServer(t, Config{})
	for _, region := range []string{"europe", "asia", "europe"} {
		rec := do(s, http.MethodPost, "/analyze",
			`{"strategic_question":"`+question+`","region":"`+region+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var resp struct {
		Data struct {
			Sessions   []types.HistorySession `json:"sessions"`
			Pagination struct {
				Total   int  `json:"total"`
				HasMore bool `json:"has_more"`
			} `json:"pagination"`
		} `json:"data"`
	}
	rec := do(s, http.MethodGet, "/api/analysis-history?region=europe&limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Pagination.Total)
	assert.True(t, resp.Data.Pagination.HasMore)
	require.Len(t, resp.Data.Sessions, 1)
	assert.Equal(t, int64(1003), resp.Data.Sessions[0].ID)

	rec = do(s, http.MethodGet, "/api/analysis-history?search=nothing-matches", "")
	assert.Contains(t, rec.Body.String(), `"sessions":[]`)
}

func TestTemplatesAndRecommendations(t *testing.T) {
	s := newServer(t, Config{})

	rec := do(s, http.MethodGet, "/api/templates?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Templates []types.Template `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Templates, 2)
	assert.NotZero(t, list.Templates[0].ID)

	rec = do(s, http.MethodPost, "/api/get-template-recommendations", `{"strategic_question":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(s, http.MethodPost, "/api/track-query-pattern", `{"strategic_question":"`+question+`","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.Patterns(), 1)
	assert.Equal(t, "u1", s.Patterns()[0].UserID)
}

func TestEndToEnd_ClientAndRunner(t *testing.T) {
	s := newServer(t, Config{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, client.Ping(context.Background()))

	runner, err := session.NewRunner(session.Config{Client: client, Tracker: client, UserID: "analyst-7"})
	require.NoError(t, err)

	run, err := runner.Execute(context.Background(), types.AnalysisRequest{
		StrategicQuestion: question,
		TimeFrame:         "medium_term",
		Region:            "europe",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, run.Status())
	assert.Equal(t, int64(1001), run.SessionID())

	path, err := session.Export(context.Background(), client, run.Record(), t.TempDir(), time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "strategic_analysis_20261018_093000.pdf", filepath.Base(path))

	results, err := client.SubmitReview(context.Background(), api.Review{
		SessionID: run.SessionID(),
		Agents:    []types.AgentName{types.AgentBackcasting, types.AgentHighImpact},
		Rating:    5,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, s.Ratings(), 2)

	page, err := client.History(context.Background(), types.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.Eventually(t, func() bool { return len(s.Patterns()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "analyst-7", s.Patterns()[0].UserID)
}
