package pipeline

import (
	"errors"
	"fmt"

	"github.com/airenas/memoir/internal/pkg/status"
)

// ErrTransition is returned for a transition not allowed from the current state
var ErrTransition = errors.New("transition not allowed")

// Event moves a project between states
type Event int

const (
	// AssetAdded - a clip was confirmed
	AssetAdded Event = iota + 1
	// AssetsCleared - the last clip was removed
	AssetsCleared
	// Submit - user asked to process the clips, also used for resubmission
	Submit
	// ClipsTranscribed - fan-in barrier passed
	ClipsTranscribed
	// StoryExtracted - extraction finished
	StoryExtracted
	// DraftWritten - narrative stage finished
	DraftWritten
	// StageFailed - STT, EXTRACT or WRITE failed terminally
	StageFailed
)

var eventName = map[Event]string{AssetAdded: "asset-added", AssetsCleared: "assets-cleared",
	Submit: "submit", ClipsTranscribed: "clips-transcribed", StoryExtracted: "story-extracted",
	DraftWritten: "draft-written", StageFailed: "stage-failed"}

func (e Event) String() string {
	if s, ok := eventName[e]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var transitions = map[status.ProjectStatus]map[Event]status.ProjectStatus{
	status.Draft: {
		AssetAdded: status.Uploading,
		Submit:     status.Processing,
	},
	status.Uploading: {
		AssetAdded:    status.Uploading,
		AssetsCleared: status.Draft,
		Submit:        status.Processing,
	},
	status.Processing: {
		ClipsTranscribed: status.Processing,
		StoryExtracted:   status.Processing,
		DraftWritten:     status.Completed,
		StageFailed:      status.Failed,
	},
	status.Completed: {
		Submit: status.Processing,
	},
	status.Failed: {
		AssetAdded:    status.Failed,
		AssetsCleared: status.Failed,
		Submit:        status.Processing,
	},
}

// Next returns the state after the event
func Next(from status.ProjectStatus, ev Event) (status.ProjectStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrTransition, ev, from)
}

// Sources returns all states the event is allowed from
func Sources(ev Event) []status.ProjectStatus {
	res := []status.ProjectStatus{}
	for _, st := range [...]status.ProjectStatus{status.Draft, status.Uploading, status.Processing,
		status.Completed, status.Failed} {
		if _, ok := transitions[st][ev]; ok {
			res = append(res, st)
		}
	}
	return res
}

// Target returns the state the event leads to from any allowed source
// Events leading to source dependent states return false
func Target(ev Event) (status.ProjectStatus, bool) {
	var res status.ProjectStatus
	for _, st := range Sources(ev) {
		to := transitions[st][ev]
		if res != "" && res != to {
			return "", false
		}
		res = to
	}
	return res, res != ""
}

// CanSubmit checks if the project can start a new cycle
func CanSubmit(from status.ProjectStatus, assets int) error {
	if assets < 1 {
		return fmt.Errorf("%w: no audio assets", ErrTransition)
	}
	_, err := Next(from, Submit)
	return err
}

// CanEditAssets returns true if clips may be added or removed
func CanEditAssets(st status.ProjectStatus) bool {
	_, err := Next(st, AssetAdded)
	return err == nil
}

// NextStage returns the stage that follows t inside one cycle
func NextStage(t status.JobType) (status.JobType, bool) {
	switch t {
	case status.STT:
		return status.Extract, true
	case status.Extract:
		return status.Write, true
	}
	return "", false
}

// CompletionEvent returns the project event for a completed stage
func CompletionEvent(t status.JobType) (Event, bool) {
	switch t {
	case status.STT:
		return ClipsTranscribed, true
	case status.Extract:
		return StoryExtracted, true
	case status.Write:
		return DraftWritten, true
	}
	return 0, false
}

var jobTransitions = map[status.JobStatus][]status.JobStatus{
	status.JobPending:    {status.JobProcessing, status.JobCompleted, status.JobFailed, status.JobCancelled},
	status.JobProcessing: {status.JobProcessing, status.JobCompleted, status.JobFailed, status.JobCancelled},
}

// CanTransition checks a job status change, terminal jobs never change
func CanTransition(from, to status.JobStatus) bool {
	for _, st := range jobTransitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

// JobSources returns the job states that may change to the status
func JobSources(to status.JobStatus) []status.JobStatus {
	res := []status.JobStatus{}
	for _, st := range [...]status.JobStatus{status.JobPending, status.JobProcessing, status.JobCompleted,
		status.JobFailed, status.JobCancelled} {
		if CanTransition(st, to) {
			res = append(res, st)
		}
	}
	return res
}

// OpenJobStatuses are the job states a conditional update may start from
func OpenJobStatuses() []status.JobStatus {
	return []status.JobStatus{status.JobPending, status.JobProcessing}
}
