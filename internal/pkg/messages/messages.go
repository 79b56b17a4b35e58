package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/status"
)

const (
	st = "MEMOIR/"
	// STT queue name
	STT = st + "STT"
	// Extract queue name
	Extract = st + "Extract"
	// Write queue name
	Write = st + "Write"
	// Export queue name
	Export = st + "Export"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
	// Inform queue name
	Inform = st + "Inform"
)

// JobMessage is a base message for all stage queues
// QueueMessage.ID keeps the project ID
type JobMessage struct {
	amessages.QueueMessage
	JobID   string `json:"jobId"`
	CycleID string `json:"cycleId,omitempty"`
}

// STTMessage asks to transcribe one clip
type STTMessage struct {
	JobMessage
	AudioAssetID string `json:"audioAssetId"`
}

// ExtractMessage asks to extract story facts from cycle transcripts
type ExtractMessage struct {
	JobMessage
	TranscriptIDs []string `json:"transcriptIds,omitempty"`
}

// WriteMessage asks to write a draft
type WriteMessage struct {
	JobMessage
	StoryID string `json:"storyId"`
}

// ExportMessage asks to render a draft
type ExportMessage struct {
	JobMessage
	DraftID string `json:"draftId"`
	Format  string `json:"format"`
}

// NewJobMessage creates base message
func NewJobMessage(projectID, cycleID, jobID string) JobMessage {
	return JobMessage{QueueMessage: amessages.QueueMessage{ID: projectID}, CycleID: cycleID, JobID: jobID}
}

// QueueFor returns the queue name for a job type
func QueueFor(t status.JobType) string {
	switch t {
	case status.STT:
		return STT
	case status.Extract:
		return Extract
	case status.Write:
		return Write
	case status.ExportPDF, status.ExportDOCX:
		return Export
	}
	return ""
}
