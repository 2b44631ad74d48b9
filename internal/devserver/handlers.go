package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

const maxHistoryLimit = 100

// Health answers the client's reachability probe.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Strategic analysis mock backend",
	})
}

// Analyze streams one NDJSON record per agent, preceded by session info.
func (s *Server) Analyze(c echo.Context) error {
	var req types.AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if strings.TrimSpace(req.StrategicQuestion) == "" {
		return detail(c, http.StatusUnprocessableEntity, "strategic_question is required")
	}

	lines := s.fixture
	if lines == nil {
		lines = generate(req, types.DefaultRoster())
	}

	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return detail(c, http.StatusInternalServerError, "Streaming not supported")
	}

	id := s.openSession(req)
	logger := s.logger.With(zap.Int64("session_id", id))
	logger.Info("Streaming analysis", zap.Int("records", len(lines)))

	w.Header().Set(echo.HeaderContentType, api.NDJSONContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	sent := 0
	write := func(line []byte) bool {
		if _, err := w.Write(append(line, '\n')); err != nil {
			logger.Warn("Stream write failed", zap.Error(err))
			return false
		}
		flusher.Flush()
		return true
	}

	status := "completed"
	if !write(sessionLine(id)) {
		status = "cancelled"
	}
	for _, line := range lines {
		if status != "completed" {
			break
		}
		if s.delay > 0 {
			t := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				status = "cancelled"
				continue
			case <-t.C:
			}
		}
		if !write(line) {
			status = "cancelled"
			continue
		}
		sent++
	}

	s.closeSession(id, status, sent)
	logger.Info("Analysis stream finished", zap.String("status", status), zap.Int("sent", sent))
	return nil
}

func (s *Server) openSession(req types.AnalysisRequest) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSession++
	s.sessions = append(s.sessions, types.HistorySession{
		ID:                s.nextSession,
		StrategicQuestion: req.StrategicQuestion,
		TimeFrame:         req.TimeFrame,
		Region:            req.Region,
		Status:            "processing",
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
	})
	return s.nextSession
}

func (s *Server) closeSession(id int64, status string, results int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(types.DefaultRoster())
	for i := range s.sessions {
		if s.sessions[i].ID != id {
			continue
		}
		s.sessions[i].Status = status
		s.sessions[i].AgentResultsCount = results
		if total > 0 {
			s.sessions[i].CompletionRate = float64(results) / float64(total) * 100
		}
		return
	}
}

// GeneratePDF returns a one-page report listing the agents that produced
// results.
func (s *Server) GeneratePDF(c echo.Context) error {
	var req types.ExportRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if len(req.AnalysisData) == 0 {
		return detail(c, http.StatusBadRequest, "No analysis data provided")
	}

	agents := make([]string, 0, len(req.AnalysisData))
	for name := range req.AnalysisData {
		agents = append(agents, string(name))
	}
	sort.Strings(agents)

	text := []string{
		"Strategic Analysis Report",
		"Question: " + req.StrategicQuestion,
		"Time frame: " + req.TimeFrame + "   Region: " + req.Region,
		"",
	}
	for _, a := range agents {
		text = append(text, "- "+a)
	}

	filename := api.PDFFilename(time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "application/pdf", buildPDF(text))
}

// SubmitRating stores one agent rating.
func (s *Server) SubmitRating(c echo.Context) error {
	var sub types.RatingSubmission
	if err := c.Bind(&sub); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if sub.Rating < 1 || sub.Rating > 5 {
		return detail(c, http.StatusUnprocessableEntity, "Rating must be between 1 and 5")
	}
	if strings.TrimSpace(sub.AgentName) == "" {
		return detail(c, http.StatusUnprocessableEntity, "agent_name is required")
	}

	s.mu.Lock()
	s.ratings = append(s.ratings, sub)
	id := int64(len(s.ratings))
	s.mu.Unlock()

	s.logger.Info("Rating stored",
		zap.Int64("session_id", sub.SessionID),
		zap.String("agent", sub.AgentName),
		zap.Int("rating", sub.Rating))

	return c.JSON(http.StatusOK, types.RatingResult{
		Status:   "success",
		Message:  "Rating submitted successfully",
		RatingID: id,
	})
}

// SessionRatings returns the ratings of one session grouped by agent.
func (s *Server) SessionRatings(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return detail(c, http.StatusBadRequest, "Invalid session id")
	}

	out := api.SessionRatings{
		SessionID:      id,
		RatingsByAgent: make(map[string][]json.RawMessage),
	}

	s.mu.Lock()
	for _, r := range s.ratings {
		if r.SessionID != id {
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		out.RatingsByAgent[r.AgentName] = append(out.RatingsByAgent[r.AgentName], raw)
		out.TotalRatings++
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, out)
}

// History pages through past sessions, newest first.
func (s *Server) History(c echo.Context) error {
	limit := queryInt(c, "limit", api.HistoryPageSize)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = api.HistoryPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	search := strings.ToLower(strings.TrimSpace(c.QueryParam("search")))
	status := c.QueryParam("status")
	region := c.QueryParam("region")

	s.mu.Lock()
	var matched []types.HistorySession
	for i := len(s.sessions) - 1; i >= 0; i-- {
		h := s.sessions[i]
		if search != "" && !strings.Contains(strings.ToLower(h.StrategicQuestion), search) {
			continue
		}
		if status != "" && h.Status != status {
			continue
		}
		if region != "" && h.Region != region {
			continue
		}
		matched = append(matched, h)
	}
	s.mu.Unlock()

	total := len(matched)
	page := []types.HistorySession{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = matched[offset:end]
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Retrieved %d sessions", len(page)),
		"data": map[string]any{
			"sessions": page,
			"pagination": map[string]any{
				"total":    total,
				"limit":    limit,
				"offset":   offset,
				"has_more": offset+len(page) < total,
			},
		},
	})
}

// Templates lists the template library by popularity.
func (s *Server) Templates(c echo.Context) error {
	all := s.numbered()
	if limit := queryInt(c, "limit", 0); limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "success",
		"templates": all,
	})
}

type recommendationRequest struct {
	StrategicQuestion string `json:"strategic_question"`
	UserID            string `json:"user_id"`
}

// Recommendations ranks templates by word overlap with the question.
func (s *Server) Recommendations(c echo.Context) error {
	var req recommendationRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if strings.TrimSpace(req.StrategicQuestion) == "" {
		return detail(c, http.StatusUnprocessableEntity, "strategic_question is required")
	}

	words := tokens(req.StrategicQuestion)
	type scored struct {
		t     types.Template
		score int
	}
	var ranked []scored
	for _, t := range s.numbered() {
		score := 0
		for w := range tokens(t.Name + " " + t.Description + " " + t.Category + " " + t.QuestionTemplate) {
			if words[w] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{t, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	recs := []types.Template{}
	for i := 0; i < len(ranked) && i < 3; i++ {
		recs = append(recs, ranked[i].t)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "success",
		"recommendations": recs,
	})
}

// TrackQueryPattern records a submitted question.
func (s *Server) TrackQueryPattern(c echo.Context) error {
	var p types.QueryPattern
	if err := c.Bind(&p); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if strings.TrimSpace(p.StrategicQuestion) == "" {
		return detail(c, http.StatusUnprocessableEntity, "strategic_question is required")
	}

	s.mu.Lock()
	s.patterns = append(s.patterns, p)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Query pattern tracked",
	})
}

func (s *Server) numbered() []types.Template {
	all := s.lib.Popular()
	for i := range all {
		if all[i].ID == 0 {
			all[i].ID = int64(i + 1)
		}
	}
	return all
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// tokens returns the lowercased words of s longer than three letters.
func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) > 3 {
			out[w] = true
		}
	}
	return out
}
