package devserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/stratos/foresight/internal/stream"
	"github.com/stratos/foresight/internal/types"
)

// LoadFixture reads an NDJSON recording. Blank lines and session_info
// records are dropped; the server writes its own session line.
func LoadFixture(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64<<10), stream.MaxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if rec, err := stream.DecodeRecord(line); err == nil && rec.Kind == stream.KindSessionInfo {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan fixture: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s has no agent records", path)
	}
	return lines, nil
}

func sessionLine(id int64) []byte {
	line, _ := json.Marshal(map[string]any{
		types.SessionInfoKey: map[string]any{"session_id": id},
	})
	return line
}

// generate builds one record per agent, rotating through the payload
// shapes the live backend emits.
func generate(req types.AnalysisRequest, roster types.Roster) [][]byte {
	lines := make([][]byte, 0, len(roster))
	for i, agent := range roster {
		body := fmt.Sprintf("## %s\n\n**Question:** %s\n\n- Time frame: %s\n- Region: %s\n\n%s",
			agent, req.StrategicQuestion, req.TimeFrame, req.Region, findings(agent))

		var rec any
		switch i % 4 {
		case 0:
			rec = map[string]any{string(agent): map[string]any{
				"status": "success",
				"data":   map[string]any{"formatted_output": body, "agent": string(agent)},
			}}
		case 1:
			rec = map[string]any{string(agent): map[string]any{
				"status":   "success",
				"analysis": body,
			}}
		case 2:
			rec = map[string]any{
				"kind":  stream.KindAgentUpdate,
				"agent": string(agent),
				"payload": map[string]any{
					"status": "success",
					"data":   map[string]any{"response": body},
				},
			}
		default:
			rec = map[string]any{string(agent): map[string]any{
				"result": map[string]any{"formatted_output": body},
			}}
		}

		line, _ := json.Marshal(rec)
		lines = append(lines, line)
	}
	return lines
}

func findings(agent types.AgentName) string {
	switch agent {
	case types.AgentProblemExplorer:
		return "The core problem is framed by demand uncertainty and supplier concentration."
	case types.AgentBestPractices:
		return "Leaders pair phased rollouts with early partner commitments."
	case types.AgentHorizonScanning:
		return "Weak signals point to regulatory tightening and new entrants."
	case types.AgentScenarioPlanning:
		return "Three scenarios diverge on adoption speed and capital cost."
	case types.AgentResearchSynthesis:
		return "Available studies agree on direction but not on timing."
	case types.AgentStrategicAction:
		return "Prioritise two pilots and a partnership review this quarter."
	case types.AgentHighImpact:
		return "The highest leverage move is securing supply before competitors."
	case types.AgentBackcasting:
		return "Working back from the target state sets milestones at years one and three."
	}
	return "No findings."
}
