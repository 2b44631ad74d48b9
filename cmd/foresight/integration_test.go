package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stratos/foresight/internal/devserver"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/validator"
)

const testQuestion = "How should a mid-size utility enter grid-scale storage?"

// testEnv is a mock backend plus a config file pointing at it.
type testEnv struct {
	backend    *devserver.Server
	url        string
	configPath string
	exportDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend, err := devserver.New(devserver.Config{})
	if err != nil {
		t.Fatalf("Failed to create mock backend: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		backend:    backend,
		url:        srv.URL,
		configPath: writeConfig(t, srv.URL),
		exportDir:  filepath.Join(t.TempDir(), "reports"),
	}
}

func writeConfig(t *testing.T, serverURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`server:
  url: %s
  timeout_seconds: 5
user:
  id: analyst-7
analysis:
  default_time_frame: medium_term
  default_region: europe
export:
  dir: %s
archive:
  enabled: true
  path: %s
templates:
  path: %s
render:
  style: notty
  width: 80
log:
  file: %s
`, serverURL,
		filepath.Join(dir, "reports"),
		filepath.Join(dir, "archive.db"),
		filepath.Join(dir, "templates.yaml"),
		filepath.Join(dir, "foresight.log"))

	path := filepath.Join(dir, "foresight.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath}, args...)...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestE2E_AnalyzeArchiveExportRate runs a full analysis against the mock
// backend and then works with the archived run.
func TestE2E_AnalyzeArchiveExportRate(t *testing.T) {
	env := newTestEnv(t)

	// STEP 1: Stream an analysis
	out, err := env.run(t, "analyze", "--raw", "-t", "long_term", "-r", "asia", testQuestion)
	if err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Session: 1001",
		"[8/8]",
		"Analysis complete: 8 succeeded, 0 failed",
		"Region: asia",
		"Connecting to backend at " + env.url,
		"Elapsed:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output missing %q:\n%s", want, out)
		}
	}

	// STEP 2: The run is in the local archive
	out, err = env.run(t, "history", "--local")
	if err != nil {
		t.Fatalf("history --local failed: %v", err)
	}
	if !strings.Contains(out, "completed") || !strings.Contains(out, "8/8 agents") {
		t.Errorf("local history missing the run:\n%s", out)
	}

	out, err = env.run(t, "show", "latest")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "Backcasting") || !strings.Contains(out, testQuestion) {
		t.Errorf("show output incomplete:\n%s", out)
	}

	// STEP 3: Export it
	out, err = env.run(t, "export", "latest", "--dir", env.exportDir)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(env.exportDir, "strategic_analysis_*.pdf"))
	if len(files) != 1 {
		t.Fatalf("Expected one report in %s, got %v (output: %s)", env.exportDir, files, out)
	}
	data, _ := os.ReadFile(files[0])
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("Report is not a PDF")
	}

	// STEP 4: Rate two agents
	out, err = env.run(t, "rate", "1001", "--agent", "1", "--agent", "high impact", "--rating", "4", "--review", "Useful")
	if err != nil {
		t.Fatalf("rate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Submitted 2 rating(s): 4/5 - Very Good") {
		t.Errorf("Unexpected rate output:\n%s", out)
	}
	ratings := env.backend.Ratings()
	if len(ratings) != 2 || ratings[0].AgentName != string(types.AgentProblemExplorer) || ratings[1].UserID != "analyst-7" {
		t.Errorf("Unexpected stored ratings: %+v", ratings)
	}

	out, err = env.run(t, "rate", "1001", "--show")
	if err != nil {
		t.Fatalf("rate --show failed: %v", err)
	}
	if !strings.Contains(out, "High Impact") || !strings.Contains(out, "2 rating(s)") {
		t.Errorf("Unexpected ratings listing:\n%s", out)
	}

	// STEP 5: Remote history knows the session
	out, err = env.run(t, "history", "--status", "completed")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "#1001") || !strings.Contains(out, "Showing 1-1 of 1") {
		t.Errorf("Unexpected history output:\n%s", out)
	}

	// STEP 6: Delete the archived run
	out, err = env.run(t, "history", "--delete", "latest")
	if err != nil {
		t.Fatalf("history --delete failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Deleted run") {
		t.Errorf("Unexpected delete output:\n%s", out)
	}
	out, err = env.run(t, "history", "--local")
	if err != nil {
		t.Fatalf("history --local failed: %v", err)
	}
	if !strings.Contains(out, "No archived runs.") {
		t.Errorf("Run still archived after delete:\n%s", out)
	}
	if _, err := env.run(t, "show", "latest"); err == nil {
		t.Errorf("show latest should fail on an empty archive")
	}
}

func TestE2E_InvalidQuestionNeverReachesBackend(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "analyze", "too short")
	if !errors.Is(err, validator.ErrInvalidRequest) {
		t.Fatalf("Expected invalid request error, got %v", err)
	}

	out, _ := env.run(t, "history")
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("Backend received a session:\n%s", out)
	}
}

func TestE2E_BackendDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	out, err := runCLI(t, "--config", writeConfig(t, url), "analyze", testQuestion)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("Expected backend down error, got %v", err)
	}
	if !strings.Contains(out, "Connecting to backend at "+url+"... ✗") {
		t.Errorf("Ping line missing the backend URL:\n%s", out)
	}
	if !strings.Contains(out, "Could not connect to the analysis backend at "+url) {
		t.Errorf("Connection help missing:\n%s", out)
	}
}

func TestE2E_Replay(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(t.TempDir(), "run.ndjson")
	rec := strings.Join([]string{
		`{"session_info": {"session_id": 42}}`,
		`{"High Impact": "Error: timeout"}`,
		`{"Strategic Ac`,
		`{"Backcasting": {"status": "success", "data": {"formatted_output": "Milestones at years one and three"}}}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(rec), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "replay", "--raw", path)
	if !errors.Is(err, errIncomplete) {
		t.Fatalf("Expected incomplete run, got %v", err)
	}
	for _, want := range []string{"Error: timeout", "Milestones at years one and three", "Session: 42", "2 of 8"} {
		if !strings.Contains(out, want) {
			t.Errorf("replay output missing %q:\n%s", want, out)
		}
	}
}

func TestE2E_Templates(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "templates", "--offline")
	if err != nil {
		t.Fatalf("templates failed: %v", err)
	}
	if !strings.Contains(out, "Market Entry Strategy") || !strings.Contains(out, "vars: market, region") {
		t.Errorf("Unexpected template listing:\n%s", out)
	}

	out, err = env.run(t, "templates", "--offline", "--use", "1", "--var", "market=grid storage", "--dry-run")
	if err != nil {
		t.Fatalf("templates --use failed: %v", err)
	}
	if !strings.Contains(out, "entering the grid storage market in global") {
		t.Errorf("Template not filled:\n%s", out)
	}

	if _, err := env.run(t, "templates", "--offline", "--use", "1", "--dry-run"); err == nil {
		t.Errorf("Expected an error for unfilled placeholders")
	}

	out, err = env.run(t, "templates", "--recommend", "What market entry strategy fits our European markets?")
	if err != nil {
		t.Fatalf("templates --recommend failed: %v", err)
	}
	if !strings.Contains(out, "Market Entry Strategy") {
		t.Errorf("Expected market entry recommendation:\n%s", out)
	}
}

func TestCommands_NoBackend(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil || !strings.Contains(out, "Version:") || !strings.Contains(out, Version) {
		t.Errorf("version: err=%v out=%s", err, out)
	}

	out, err = runCLI(t, "agents")
	if err != nil || !strings.Contains(out, "8.") || !strings.Contains(out, "Backcasting") {
		t.Errorf("agents: err=%v out=%s", err, out)
	}

	path := filepath.Join(t.TempDir(), "foresight.yaml")
	out, err = runCLI(t, "--config", path, "config", "--init")
	if err != nil || !strings.Contains(out, "Created") {
		t.Fatalf("config --init: err=%v out=%s", err, out)
	}
	out, err = runCLI(t, "--config", path, "config")
	if err != nil || !strings.Contains(out, "url: http://127.0.0.1:8000") {
		t.Errorf("config --show: err=%v out=%s", err, out)
	}
}

func TestResolveAgents(t *testing.T) {
	roster := types.DefaultRoster()

	tests := []struct {
		name    string
		refs    []string
		want    []types.AgentName
		wantErr bool
	}{
		{"by number", []string{"1", "8"}, []types.AgentName{types.AgentProblemExplorer, types.AgentBackcasting}, false},
		{"by name", []string{"scenario planning"}, []types.AgentName{types.AgentScenarioPlanning}, false},
		{"out of range", []string{"9"}, nil, true},
		{"unknown", []string{"Oracle"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAgents(roster, tt.refs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveAgents() error = %v, wantErr %v", err, tt.wantErr)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("resolveAgents() = %v, want %v", got, tt.want)
			}
		})
	}
}
