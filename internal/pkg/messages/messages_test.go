package messages

import (
	"encoding/json"
	"testing"

	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFor(t *testing.T) {
	assert.Equal(t, STT, QueueFor(status.STT))
	assert.Equal(t, Extract, QueueFor(status.Extract))
	assert.Equal(t, Write, QueueFor(status.Write))
	assert.Equal(t, Export, QueueFor(status.ExportPDF))
	assert.Equal(t, Export, QueueFor(status.ExportDOCX))
	assert.Equal(t, "", QueueFor(status.JobType("olia")))
}

func TestSTTMessage_Flat(t *testing.T) {
	b, err := json.Marshal(STTMessage{JobMessage: NewJobMessage("p1", "c1", "j1"), AudioAssetID: "a1"})
	require.Nil(t, err)
	var m map[string]interface{}
	require.Nil(t, json.Unmarshal(b, &m))
	assert.Equal(t, "j1", m["jobId"])
	assert.Equal(t, "c1", m["cycleId"])
	assert.Equal(t, "a1", m["audioAssetId"])
}
