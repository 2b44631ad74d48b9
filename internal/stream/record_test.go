package stream

import (
	"testing"

	"github.com/stratos/foresight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_LegacyFirstKey(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"Best Practices": {"status":"success"}, "Backcasting": "ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, KindAgentUpdate, rec.Kind)
	assert.Equal(t, types.AgentBestPractices, rec.Agent)
	assert.JSONEq(t, `{"status":"success"}`, string(rec.Payload))
	assert.False(t, rec.Tagged)
}

func TestDecodeRecord_FirstKeyIsDocumentOrder(t *testing.T) {
	// "Z" sorts after "A"; document order must win over map order.
	rec, err := DecodeRecord([]byte(`{"Zeta": 1, "Alpha": 2}`))
	require.NoError(t, err)
	assert.Equal(t, types.AgentName("Zeta"), rec.Agent)
}

func TestDecodeRecord_SessionInfo(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"session_info": {"session_id": 42}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSessionInfo, rec.Kind)

	info := ParseSessionInfo(rec.Payload)
	assert.Equal(t, int64(42), info.ID)
}

func TestDecodeRecord_TaggedEnvelope(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"kind":"agent_update","agent":"High Impact","payload":"Error: timeout"}`))
	require.NoError(t, err)
	assert.True(t, rec.Tagged)
	assert.Equal(t, types.AgentHighImpact, rec.Agent)
	assert.Equal(t, `"Error: timeout"`, string(rec.Payload))

	rec, err = DecodeRecord([]byte(`{"kind":"session_info","payload":{"id":"7"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSessionInfo, rec.Kind)
	assert.Equal(t, int64(7), ParseSessionInfo(rec.Payload).ID)
}

func TestDecodeRecord_UnknownKindFallsBackToLegacy(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"kind":"something","agent":"x"}`))
	require.NoError(t, err)
	assert.False(t, rec.Tagged)
	assert.Equal(t, types.AgentName("kind"), rec.Agent)
}

func TestDecodeRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"truncated", `{"Strategic Ac`, ErrMalformed},
		{"garbage", `not json`, ErrMalformed},
		{"array", `[1,2,3]`, ErrNotObject},
		{"string", `"hello"`, ErrNotObject},
		{"empty object", `{}`, ErrNoTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.line))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSessionInfo_Forms(t *testing.T) {
	assert.Equal(t, int64(12), ParseSessionInfo([]byte(`12`)).ID)
	assert.Equal(t, int64(5), ParseSessionInfo([]byte(`{"session_id":"5"}`)).ID)
	assert.Equal(t, int64(0), ParseSessionInfo([]byte(`{"user":"x"}`)).ID)
	assert.Equal(t, int64(0), ParseSessionInfo([]byte(`"opaque"`)).ID)
}
