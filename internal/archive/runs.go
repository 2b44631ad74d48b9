package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no archived run matches an id.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous is returned when an id prefix matches several runs.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Summary is one row of the archive listing.
type Summary struct {
	ID                string
	StrategicQuestion string
	TimeFrame         string
	Region            string
	Status            string
	SessionID         int64
	StartedAt         time.Time
	Completed         int
}

// ListOptions narrows ListRuns.
type ListOptions struct {
	Limit  int
	Offset int
	Search string
	Status string
}

// SaveRun stores rec, replacing any earlier copy with the same id.
func (db *DB) SaveRun(ctx context.Context, rec types.RunRecord) error {
	scope, err := json.Marshal(rec.Request.Scope)
	if err != nil {
		return fmt.Errorf("encoding scope: %w", err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_results WHERE run_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing agent results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategic_question, time_frame, region, prompt, scope, session_id, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Request.StrategicQuestion, rec.Request.TimeFrame, rec.Request.Region,
		rec.Request.Prompt, string(scope), rec.SessionID, rec.Status, rec.Error,
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, a := range rec.Agents {
		var payload sql.NullString
		if raw, ok := rec.Payloads[a.Name]; ok {
			payload = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agent_results (run_id, position, agent_name, status, content, has_content, raw_content, error, started_at, completed_at, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, string(a.Name), int(a.Status), a.Content, a.HasContent, a.RawContent,
			a.Error, formatTime(a.StartedAt), formatTime(a.CompletedAt), payload,
		)
		if err != nil {
			return fmt.Errorf("inserting result for %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	db.logger.Debug("Run archived",
		zap.String("run_id", rec.ID),
		zap.String("status", rec.Status),
		zap.Int("agents", len(rec.Agents)))
	return nil
}

// GetRun loads a run by its full id or a unique prefix of it.
func (db *DB) GetRun(ctx context.Context, id string) (*types.RunRecord, error) {
	fullID, err := db.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := &types.RunRecord{ID: fullID}
	var scope, startedAt, finishedAt string
	err = db.sql.QueryRowContext(ctx,
		`SELECT strategic_question, time_frame, region, prompt, scope, session_id, status, error, started_at, finished_at
		 FROM runs WHERE id = ?`, fullID,
	).Scan(
		&rec.Request.StrategicQuestion, &rec.Request.TimeFrame, &rec.Request.Region,
		&rec.Request.Prompt, &scope, &rec.SessionID, &rec.Status, &rec.Error,
		&startedAt, &finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", fullID, err)
	}
	if scope != "" && scope != "null" {
		if err := json.Unmarshal([]byte(scope), &rec.Request.Scope); err != nil {
			return nil, fmt.Errorf("decoding scope: %w", err)
		}
	}
	rec.StartedAt = parseTime(startedAt)
	rec.FinishedAt = parseTime(finishedAt)

	if err := db.loadAgents(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (db *DB) loadAgents(ctx context.Context, rec *types.RunRecord) error {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT agent_name, status, content, has_content, raw_content, error, started_at, completed_at, payload
		 FROM agent_results WHERE run_id = ? ORDER BY position`, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("loading agent results: %w", err)
	}
	defer rows.Close()

	rec.Payloads = make(map[types.AgentName]json.RawMessage)
	for rows.Next() {
		var (
			a                    types.AgentRunState
			name                 string
			status               int
			startedAt, completed string
			payload              sql.NullString
		)
		if err := rows.Scan(&name, &status, &a.Content, &a.HasContent, &a.RawContent,
			&a.Error, &startedAt, &completed, &payload); err != nil {
			return fmt.Errorf("scanning agent result: %w", err)
		}
		a.Name = types.AgentName(name)
		a.Status = types.AgentStatus(status)
		a.StartedAt = parseTime(startedAt)
		a.CompletedAt = parseTime(completed)
		rec.Agents = append(rec.Agents, a)

		if payload.Valid {
			rec.Payloads[a.Name] = json.RawMessage(payload.String)
		}
	}
	return rows.Err()
}

// ListRuns returns archived runs, newest first.
func (db *DB) ListRuns(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	var (
		where []string
		args  []any
	)
	if opts.Search != "" {
		where = append(where, "instr(lower(r.strategic_question), lower(?)) > 0")
		args = append(args, opts.Search)
	}
	if opts.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, opts.Status)
	}

	query := `SELECT r.id, r.strategic_question, r.time_frame, r.region, r.status, r.session_id, r.started_at,
			(SELECT COUNT(*) FROM agent_results a WHERE a.run_id = r.id AND a.status IN (?, ?))
		FROM runs r`
	args = append([]any{int(types.StatusSuccess), int(types.StatusError)}, args...)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.started_at DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var startedAt string
		if err := rows.Scan(&s.ID, &s.StrategicQuestion, &s.TimeFrame, &s.Region,
			&s.Status, &s.SessionID, &startedAt, &s.Completed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		s.StartedAt = parseTime(startedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its agent results.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	fullID, err := db.resolve(ctx, id)
	if err != nil {
		return err
	}
	if _, err := db.sql.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("deleting run %s: %w", fullID, err)
	}
	db.logger.Info("Run deleted", zap.String("run_id", fullID))
	return nil
}

func (db *DB) resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}

	rows, err := db.sql.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 10`, id, id)
	if err != nil {
		return "", fmt.Errorf("resolving run id: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("resolving run id: %w", err)
		}
		if m == id {
			return m, nil
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolving run id: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %d runs", ErrAmbiguous, id, len(matches))
	}
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
