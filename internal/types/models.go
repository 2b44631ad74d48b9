// Package types defines shared data structures for the foresight client.
package types

import (
	"encoding/json"
	"time"
)

// AgentName identifies one backend analysis agent.
type AgentName string

const (
	AgentProblemExplorer   AgentName = "Problem Explorer"
	AgentBestPractices     AgentName = "Best Practices"
	AgentHorizonScanning   AgentName = "Horizon Scanning"
	AgentScenarioPlanning  AgentName = "Scenario Planning"
	AgentResearchSynthesis AgentName = "Research Synthesis"
	AgentStrategicAction   AgentName = "Strategic Action"
	AgentHighImpact        AgentName = "High Impact"
	AgentBackcasting       AgentName = "Backcasting"
)

// SessionInfoKey is the reserved side-channel key in stream records.
const SessionInfoKey = "session_info"

// Roster is the fixed, ordered set of agents expected in one run.
type Roster []AgentName

// DefaultRoster returns the eight agents in display order.
func DefaultRoster() Roster {
	return Roster{
		AgentProblemExplorer,
		AgentBestPractices,
		AgentHorizonScanning,
		AgentScenarioPlanning,
		AgentResearchSynthesis,
		AgentStrategicAction,
		AgentHighImpact,
		AgentBackcasting,
	}
}

// Contains reports whether name is part of the roster.
func (r Roster) Contains(name AgentName) bool {
	return r.Index(name) >= 0
}

// Index returns the display position of name, or -1.
func (r Roster) Index(name AgentName) int {
	for i, n := range r {
		if n == name {
			return i
		}
	}
	return -1
}

// AgentStatus represents where an agent is in its lifecycle for one run.
type AgentStatus int

const (
	StatusWaiting AgentStatus = iota
	StatusRunning
	StatusSuccess
	StatusError
)

// String returns a human-readable status label.
func (s AgentStatus) String() string {
	names := [...]string{
		"Waiting",
		"Processing",
		"Completed",
		"Error",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// Terminal reports whether no further updates are expected.
func (s AgentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// AgentRunState is the per-agent record for the current run.
type AgentRunState struct {
	Name        AgentName
	Status      AgentStatus
	Content     string
	HasContent  bool
	RawContent  string
	Rendered    string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the time from start to completion, or zero.
func (s AgentRunState) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// AnalysisRequest is the body posted to /analyze.
type AnalysisRequest struct {
	StrategicQuestion string   `json:"strategic_question"`
	TimeFrame         string   `json:"time_frame"`
	Region            string   `json:"region"`
	Prompt            string   `json:"prompt,omitempty"`
	Scope             []string `json:"scope,omitempty"`
}

// ExportRequest is the body posted to /generate-pdf.
type ExportRequest struct {
	AnalysisData      map[AgentName]json.RawMessage `json:"analysis_data"`
	StrategicQuestion string                        `json:"strategic_question"`
	TimeFrame         string                        `json:"time_frame"`
	Region            string                        `json:"region"`
}

// RatingSubmission is the body posted to /ratings/submit.
type RatingSubmission struct {
	SessionID              int64    `json:"session_id"`
	AgentResultID          int64    `json:"agent_result_id"`
	AgentName              string   `json:"agent_name"`
	Rating                 int      `json:"rating"`
	ReviewText             *string  `json:"review_text"`
	HelpfulAspects         []string `json:"helpful_aspects"`
	ImprovementSuggestions *string  `json:"improvement_suggestions"`
	WouldRecommend         bool     `json:"would_recommend"`
	UserID                 string   `json:"user_id"`
}

// RatingResult is the backend acknowledgement of one rating.
type RatingResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	RatingID int64  `json:"rating_id"`
}

// RatingLabel returns the display label for a 1-5 star rating.
func RatingLabel(rating int) string {
	switch rating {
	case 1:
		return "Poor"
	case 2:
		return "Fair"
	case 3:
		return "Good"
	case 4:
		return "Very Good"
	case 5:
		return "Excellent"
	}
	return "Unrated"
}

// HistorySession is one remote analysis session.
type HistorySession struct {
	ID                int64   `json:"id"`
	StrategicQuestion string  `json:"strategic_question"`
	TimeFrame         string  `json:"time_frame"`
	Region            string  `json:"region"`
	Status            string  `json:"status"`
	AgentResultsCount int     `json:"agent_results_count"`
	CompletionRate    float64 `json:"completion_rate"`
	CreatedAt         string  `json:"created_at"`
}

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	Limit  int
	Offset int
	Search string
	Status string
	Region string
}

// HistoryPage is one page of remote history.
type HistoryPage struct {
	Sessions []HistorySession
	Total    int
	HasMore  bool
}

// Template is a reusable strategic question with defaults.
type Template struct {
	ID                  int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Name                string `json:"name" yaml:"name"`
	Description         string `json:"description" yaml:"description"`
	Category            string `json:"category,omitempty" yaml:"category,omitempty"`
	QuestionTemplate    string `json:"strategic_question_template" yaml:"question"`
	DefaultTimeFrame    string `json:"default_time_frame" yaml:"time_frame"`
	DefaultRegion       string `json:"default_region" yaml:"region"`
	DefaultInstructions string `json:"default_instructions" yaml:"instructions"`
	UsageCount          int    `json:"usage_count,omitempty" yaml:"-"`
}

// RunEvent is sent while a run is streaming to update the UI.
type RunEvent struct {
	RunID     string
	Agent     *AgentRunState
	SessionID int64
	Complete  bool
	Done      bool
	Stopped   bool
	Error     error
}

// QueryPattern is the body posted to /api/track-query-pattern.
type QueryPattern struct {
	StrategicQuestion      string `json:"strategic_question"`
	TimeFrame              string `json:"time_frame"`
	Region                 string `json:"region"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
	UserID                 string `json:"user_id"`
}

// RunRecord is a finished run as kept in the local archive.
type RunRecord struct {
	ID         string
	Request    AnalysisRequest
	SessionID  int64
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Agents     []AgentRunState
	Payloads   map[AgentName]json.RawMessage
}

// Completed returns how many agents reached a terminal state.
func (r RunRecord) Completed() int {
	n := 0
	for _, a := range r.Agents {
		if a.Status.Terminal() {
			n++
		}
	}
	return n
}
