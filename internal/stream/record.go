// Package stream turns the newline-delimited JSON body of an /analyze
// response into per-agent state for a fixed roster.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stratos/foresight/internal/types"
)

// RecordKind tags a decoded stream record.
type RecordKind string

const (
	KindAgentUpdate RecordKind = "agent_update"
	KindSessionInfo RecordKind = "session_info"
)

var (
	// ErrMalformed is returned for lines that are not valid JSON.
	ErrMalformed = errors.New("malformed record")
	// ErrNotObject is returned for valid JSON that is not an object.
	ErrNotObject = errors.New("record is not a JSON object")
	// ErrNoTarget is returned when a record names no agent.
	ErrNoTarget = errors.New("record has no agent key")
)

// Record is one decoded line of the stream.
type Record struct {
	Kind    RecordKind
	Agent   types.AgentName
	Payload json.RawMessage
	// Tagged is true when the line used the {kind, agent, payload} envelope.
	Tagged bool
}

// envelope is the tagged record form.
type envelope struct {
	Kind    RecordKind      `json:"kind"`
	Agent   string          `json:"agent"`
	Payload json.RawMessage `json:"payload"`
}

type field struct {
	key   string
	value json.RawMessage
}

// DecodeRecord decodes one line. Tagged envelopes are recognised by a
// string "kind" of agent_update or session_info; anything else is treated
// as the legacy shape where the first key names the agent.
func DecodeRecord(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if !json.Valid(line) {
		return Record{}, ErrMalformed
	}

	fields, err := objectFields(line)
	if err != nil {
		return Record{}, err
	}

	if rec, ok := decodeEnvelope(line, fields); ok {
		return rec, nil
	}

	for _, f := range fields {
		if f.key == types.SessionInfoKey {
			return Record{Kind: KindSessionInfo, Payload: f.value}, nil
		}
	}

	if len(fields) == 0 || fields[0].key == "" {
		return Record{}, ErrNoTarget
	}

	return Record{
		Kind:    KindAgentUpdate,
		Agent:   types.AgentName(fields[0].key),
		Payload: fields[0].value,
	}, nil
}

func decodeEnvelope(line []byte, fields []field) (Record, bool) {
	hasKind := false
	for _, f := range fields {
		if f.key == "kind" {
			hasKind = true
			break
		}
	}
	if !hasKind {
		return Record{}, false
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Record{}, false
	}

	switch env.Kind {
	case KindSessionInfo:
		return Record{Kind: KindSessionInfo, Payload: env.Payload, Tagged: true}, true
	case KindAgentUpdate:
		return Record{
			Kind:    KindAgentUpdate,
			Agent:   types.AgentName(env.Agent),
			Payload: env.Payload,
			Tagged:  true,
		}, true
	}
	return Record{}, false
}

// objectFields returns the top-level members of a JSON object in document
// order. Go maps lose key order, which the legacy protocol depends on.
func objectFields(line []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(line))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	var fields []field
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, _ := kt.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		fields = append(fields, field{key: key, value: value})
	}

	return fields, nil
}

// SessionInfo is the side-channel data the backend sends once per run.
type SessionInfo struct {
	ID  int64
	Raw json.RawMessage
}

// ParseSessionInfo extracts a numeric session id from a session_info
// payload. Both {"session_id": 12} and {"id": "12"} forms are accepted.
func ParseSessionInfo(raw json.RawMessage) SessionInfo {
	info := SessionInfo{Raw: raw}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			info.ID, _ = n.Int64()
		}
		return info
	}

	for _, key := range []string{"session_id", "id"} {
		switch v := obj[key].(type) {
		case json.Number:
			if id, err := v.Int64(); err == nil {
				info.ID = id
				return info
			}
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.ID = id
				return info
			}
		}
	}
	return info
}
