package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/raspterm/internal/telemetry"
)

func TestDecodeTerminalStartDefaults(t *testing.T) {
	for _, raw := range []string{
		`{"type":"terminal:start"}`,
		`{"type":"terminal:start","data":null}`,
		`{"type":"terminal:start","data":{"cols":0,"rows":-3}}`,
	} {
		m, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, TerminalStart{Cols: DefaultCols, Rows: DefaultRows}, m, raw)
	}

	m, err := Decode([]byte(`{"type":"terminal:start","data":{"cols":132,"rows":50}}`))
	require.NoError(t, err)
	assert.Equal(t, TerminalStart{Cols: 132, Rows: 50}, m)
}

func TestDecodeTerminalDataIsVerbatim(t *testing.T) {
	m, err := Decode([]byte(`{"type":"terminal:data","data":"ls -la\r\u001b[A"}`))
	require.NoError(t, err)
	assert.Equal(t, TerminalData{Data: "ls -la\r\x1b[A"}, m)
}

func TestDecodeResizeKeepsNonPositive(t *testing.T) {
	// The registry decides what to ignore; the decoder passes values through.
	m, err := Decode([]byte(`{"type":"terminal:resize","data":{"cols":0,"rows":10}}`))
	require.NoError(t, err)
	assert.Equal(t, TerminalResize{Cols: 0, Rows: 10}, m)
}

func TestDecodeNoPayloadMessages(t *testing.T) {
	cases := map[string]Message{
		TypeTerminalStop:     TerminalStop{},
		TypeStatsSubscribe:   StatsSubscribe{},
		TypeStatsUnsubscribe: StatsUnsubscribe{},
		TypeStatsRequest:     StatsRequest{},
	}
	for typ, want := range cases {
		m, err := Decode([]byte(`{"type":"` + typ + `"}`))
		require.NoError(t, err, typ)
		assert.Equal(t, want, m)
	}
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"type":"terminal:explode"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`{"type":"terminal:data","data":{"oops":1}}`))
	assert.Error(t, err)
}

func TestEncodeEnvelopes(t *testing.T) {
	raw, err := Encode(TerminalReady{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"terminal:ready"}`, string(raw))

	raw, err = Encode(TerminalOutput{Data: "hi\r\n"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"terminal:data","data":"hi\r\n"}`, string(raw))

	raw, err = Encode(TerminalExit{ExitCode: 0, Signal: 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"terminal:exit","data":{"exitCode":0,"signal":9}}`, string(raw))

	raw, err = Encode(StatsError{Message: "Failed to get stats"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stats:error","data":{"message":"Failed to get stats"}}`, string(raw))
}

func TestEncodeStatsUpdateCarriesSnapshot(t *testing.T) {
	raw, err := Encode(StatsUpdate{Snapshot: &telemetry.Snapshot{Timestamp: 42}})
	require.NoError(t, err)

	typ, data, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeStatsUpdate, typ)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"cpu", "memory", "disk", "network", "gpu", "system", "processes", "timestamp"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "42", string(fields["timestamp"]))
}
