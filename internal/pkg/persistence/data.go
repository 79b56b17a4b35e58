package persistence

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/airenas/memoir/internal/pkg/status"
)

var (
	// ErrNotFound is returned when no record exists
	ErrNotFound = errors.New("not found")
	// ErrJobClosed indicates that the job is already in a terminal state
	ErrJobClosed = errors.New("job closed")
	// ErrStaleCycle indicates that the project moved on to another cycle
	ErrStaleCycle = errors.New("stale cycle")
	// ErrStatus indicates a refused conditional status update
	ErrStatus = errors.New("wrong status")
	// ErrDuplicate is returned on unique key conflict
	ErrDuplicate = errors.New("duplicate")
	// ErrLimit is returned when a project has too many clips
	ErrLimit = errors.New("limit reached")
	// ErrLocked is returned when the email is already being sent or was sent
	ErrLocked = errors.New("locked")
)

// Policy names fan-in behaviour on clip failures
type Policy string

const (
	// PolicyStrict - any failed clip fails the cycle
	PolicyStrict Policy = "strict"
	// PolicyBestEffort - continue with succeeded clips if enough
	PolicyBestEffort Policy = "best-effort"
)

type (
	// Project table
	Project struct {
		ID         string               `json:"id"`
		OwnerID    string               `json:"ownerId"`
		OwnerEmail string               `json:"email,omitempty"`
		Title      string               `json:"title"`
		Status     status.ProjectStatus `json:"status"`
		CycleID    string               `json:"cycleId,omitempty"`
		Deleted    bool                 `json:"-"`
		Created    time.Time            `json:"createdAt"`
		Updated    time.Time            `json:"updatedAt"`
	}

	// AudioAsset table, one uploaded clip
	AudioAsset struct {
		ID         string    `json:"id"`
		ProjectID  string    `json:"projectId"`
		ClipIndex  int       `json:"clipIndex"`
		StorageKey string    `json:"storageKey"`
		FileName   string    `json:"fileName"`
		MimeType   string    `json:"mimeType"`
		Size       int64     `json:"size"`
		Duration   float64   `json:"duration"`
		Created    time.Time `json:"createdAt"`
	}

	// Job table
	Job struct {
		ID           string           `json:"id"`
		ProjectID    string           `json:"projectId"`
		CycleID      string           `json:"cycleId,omitempty"`
		Type         status.JobType   `json:"type"`
		Status       status.JobStatus `json:"status"`
		Progress     int              `json:"progress"`
		Error        string           `json:"error,omitempty"`
		AudioAssetID string           `json:"audioAssetId,omitempty"`
		DraftID      string           `json:"draftId,omitempty"`
		Attempts     int              `json:"attempts"`
		Output       json.RawMessage  `json:"output,omitempty"`
		Created      time.Time        `json:"createdAt"`
		Started      *time.Time       `json:"startedAt,omitempty"`
		Completed    *time.Time       `json:"completedAt,omitempty"`
	}

	// Segment is a timed transcript piece, seconds from clip start
	Segment struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	}

	// Transcript table, at most one per audio asset
	Transcript struct {
		ID           string    `json:"id"`
		ProjectID    string    `json:"projectId"`
		AudioAssetID string    `json:"audioAssetId"`
		ClipIndex    int       `json:"clipIndex"`
		Text         string    `json:"text"`
		Language     string    `json:"language"`
		Segments     []Segment `json:"segments"`
		Created      time.Time `json:"createdAt"`
	}

	// Person mentioned in the story
	Person struct {
		Name         string   `json:"name"`
		Relationship string   `json:"relationship"`
		Description  string   `json:"description,omitempty"`
		Episodes     []string `json:"episodes,omitempty"`
	}

	// Place mentioned in the story
	Place struct {
		Name         string `json:"name"`
		Period       string `json:"period,omitempty"`
		Description  string `json:"description,omitempty"`
		Significance string `json:"significance,omitempty"`
	}

	// TimelineEntry groups events of one life period
	TimelineEntry struct {
		Period string   `json:"period"`
		Events []string `json:"events"`
	}

	// Episode is a key story
	Episode struct {
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		EmotionalTone string   `json:"emotionalTone,omitempty"`
		Timestamps    []string `json:"timestamps,omitempty"`
	}

	// StoryData is the structured extraction result
	StoryData struct {
		People             []Person        `json:"people"`
		Places             []Place         `json:"places"`
		Timeline           []TimelineEntry `json:"timeline,omitempty"`
		Themes             []string        `json:"themes"`
		KeyEpisodes        []Episode       `json:"keyEpisodes"`
		MissingInfo        []string        `json:"missingInfo,omitempty"`
		SuggestedQuestions []string        `json:"suggestedQuestions,omitempty"`
	}

	// ExtractedStory table, one per project
	ExtractedStory struct {
		ID        string    `json:"id"`
		ProjectID string    `json:"projectId"`
		CycleID   string    `json:"cycleId"`
		Data      StoryData `json:"data"`
		Version   int       `json:"version"`
		Updated   time.Time `json:"updatedAt"`
	}

	// Chapter of a draft
	Chapter struct {
		Title          string   `json:"title"`
		Content        string   `json:"content"`
		Citations      []string `json:"citations"`
		UncertainParts []string `json:"uncertainParts"`
	}

	// Draft table
	Draft struct {
		ID        string    `json:"id"`
		ProjectID string    `json:"projectId"`
		Version   int       `json:"version"`
		Title     string    `json:"title"`
		Summary   string    `json:"summary,omitempty"`
		Chapters  []Chapter `json:"chapters"`
		Content   string    `json:"content"`
		WordCount int       `json:"wordCount"`
		PageCount int       `json:"pageCount"`
		Active    bool      `json:"isActive"`
		Created   time.Time `json:"createdAt"`
	}

	// Cycle table, one processing round of a project
	Cycle struct {
		ID           string    `json:"id"`
		ProjectID    string    `json:"projectId"`
		Clips        int       `json:"clips"`
		Pending      int       `json:"pending"`
		Succeeded    int       `json:"succeeded"`
		Failed       int       `json:"failed"`
		Policy       Policy    `json:"policy"`
		MinClips     int       `json:"minClips"`
		ExtractJobID string    `json:"extractJobId,omitempty"`
		WriteJobID   string    `json:"writeJobId,omitempty"`
		Cancelled    bool      `json:"cancelled"`
		Created      time.Time `json:"createdAt"`
	}

	// ExportOutput is kept in Job.Output of a completed export job
	ExportOutput struct {
		Format       string `json:"format"`
		Key          string `json:"key"`
		Size         int64  `json:"size"`
		ContentType  string `json:"contentType"`
		DraftID      string `json:"draftId"`
		DraftVersion int    `json:"draftVersion"`
	}

	// CycleRequest keeps submit parameters
	CycleRequest struct {
		ProjectID string
		Policy    Policy
		MinClips  int
		Priority  int16
	}

	// EnqueueRequest describes a job to create
	EnqueueRequest struct {
		ProjectID    string
		CycleID      string
		Type         status.JobType
		AudioAssetID string
		DraftID      string
		Priority     int16
		// After is the completed stage a claimed job follows
		After status.JobType
		// Payload builds queue message args for the new job ID
		Payload func(jobID string) interface{}
	}
)
