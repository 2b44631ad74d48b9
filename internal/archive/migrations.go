package archive

// migration is a single schema change.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of schema changes.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create runs and agent results",
		SQL: `
			CREATE TABLE runs (
				id                 TEXT PRIMARY KEY,
				strategic_question TEXT NOT NULL,
				time_frame         TEXT NOT NULL,
				region             TEXT NOT NULL,
				prompt             TEXT NOT NULL DEFAULT '',
				session_id         INTEGER NOT NULL DEFAULT 0,
				status             TEXT NOT NULL,
				error              TEXT NOT NULL DEFAULT '',
				started_at         TEXT NOT NULL,
				finished_at        TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_runs_started ON runs (started_at);

			CREATE TABLE agent_results (
				run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				position     INTEGER NOT NULL,
				agent_name   TEXT NOT NULL,
				status       INTEGER NOT NULL,
				content      TEXT NOT NULL DEFAULT '',
				has_content  INTEGER NOT NULL DEFAULT 0,
				raw_content  TEXT NOT NULL DEFAULT '',
				error        TEXT NOT NULL DEFAULT '',
				started_at   TEXT NOT NULL DEFAULT '',
				completed_at TEXT NOT NULL DEFAULT '',
				payload      TEXT,
				PRIMARY KEY (run_id, agent_name)
			);

			CREATE INDEX idx_agent_results_run ON agent_results (run_id, position);
		`,
	},
	{
		Version: 2,
		Name:    "add run scope",
		SQL: `
			ALTER TABLE runs ADD COLUMN scope TEXT NOT NULL DEFAULT '';
		`,
	},
}
