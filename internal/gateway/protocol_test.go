package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	f, err := NewRequest("id-1", "conversation.status", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, f.Type)
	assert.Equal(t, "id-1", f.ID)
	assert.Equal(t, "conversation.status", f.Method)

	var params map[string]string
	require.NoError(t, json.Unmarshal(f.Params, &params))
	assert.Equal(t, "b", params["a"])
}

func TestNewResponse(t *testing.T) {
	f, err := NewResponse("id-2", map[string]int{"n": 7})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, f.Type)
	assert.Equal(t, "id-2", f.ID)
	require.NotNil(t, f.OK)
	assert.True(t, *f.OK)
	assert.Nil(t, f.Error)
}

func TestNewErrorResponse(t *testing.T) {
	f := NewErrorResponse("id-3", ErrorShape{Code: "not_running", Message: "nope"})
	assert.Equal(t, FrameTypeResponse, f.Type)
	require.NotNil(t, f.OK)
	assert.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "not_running", f.Error.Code)
}

func TestNewEvent(t *testing.T) {
	f, err := NewEvent("new_message", map[string]string{"bot": "Ava"}, 42)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, "new_message", f.Event)
	assert.Equal(t, int64(42), f.Seq)
}

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewEvent("conversation_state", map[string]string{"state": "paused"}, 3)
	require.NoError(t, err)

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, f.Type, decoded.Type)
	assert.Equal(t, f.Event, decoded.Event)
	assert.Equal(t, f.Seq, decoded.Seq)
}
