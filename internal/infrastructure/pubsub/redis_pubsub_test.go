package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskEventWireFormat(t *testing.T) {
	data := "artifact.bmp"
	event := TaskEvent{
		TaskID:    42,
		Status:    "completed",
		Data:      &data,
		Timestamp: 1700000000,
	}

	raw, err := json.Marshal(&event)
	require.NoError(t, err)

	var decoded TaskEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event, decoded)
}

func TestTaskEventOmitsNilData(t *testing.T) {
	raw, err := json.Marshal(&TaskEvent{TaskID: 1, Status: "failed"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "data")
}
