package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/generator"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, r, size, contentType)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, key)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *Filer) UploadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *Filer) DownloadURL(ctx context.Context, key string, ttl time.Duration, fileName string) (string, error) {
	args := m.Called(ctx, key, ttl, fileName)
	return args.String(0), args.Error(1)
}

func (m *Filer) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *Filer) Clean(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertProject(ctx context.Context, p *persistence.Project) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *DB) LoadProject(ctx context.Context, id string) (*persistence.Project, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Project](args.Get(0)), args.Error(1)
}

func (m *DB) SetProjectStatus(ctx context.Context, id, cycleID string, to status.ProjectStatus,
	from ...status.ProjectStatus) (bool, error) {
	args := m.Called(ctx, id, cycleID, to, from)
	return args.Bool(0), args.Error(1)
}

func (m *DB) DeleteProject(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) InsertAsset(ctx context.Context, a *persistence.AudioAsset) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *DB) LoadAssets(ctx context.Context, projectID string) ([]*persistence.AudioAsset, error) {
	args := m.Called(ctx, projectID)
	return To[[]*persistence.AudioAsset](args.Get(0)), args.Error(1)
}

func (m *DB) LoadAsset(ctx context.Context, id string) (*persistence.AudioAsset, error) {
	args := m.Called(ctx, id)
	return To[*persistence.AudioAsset](args.Get(0)), args.Error(1)
}

func (m *DB) DeleteAsset(ctx context.Context, projectID, assetID string) (*persistence.AudioAsset, error) {
	args := m.Called(ctx, projectID, assetID)
	return To[*persistence.AudioAsset](args.Get(0)), args.Error(1)
}

func (m *DB) StartCycle(ctx context.Context, req *persistence.CycleRequest) (*persistence.Cycle, []*persistence.Job, error) {
	args := m.Called(ctx, req)
	return To[*persistence.Cycle](args.Get(0)), To[[]*persistence.Job](args.Get(1)), args.Error(2)
}

func (m *DB) LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Cycle](args.Get(0)), args.Error(1)
}

func (m *DB) Enqueue(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	args := m.Called(ctx, req)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadJobs(ctx context.Context, projectID string) ([]*persistence.Job, error) {
	args := m.Called(ctx, projectID)
	return To[[]*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) StartJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) CompleteJob(ctx context.Context, id string, output interface{}) error {
	args := m.Called(ctx, id, output)
	return args.Error(0)
}

func (m *DB) FailJob(ctx context.Context, id, errStr string) (*persistence.Job, error) {
	args := m.Called(ctx, id, errStr)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) CancelJob(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) UpdateProgress(ctx context.Context, id string, progress int) error {
	args := m.Called(ctx, id, progress)
	return args.Error(0)
}

func (m *DB) StuckJobs(ctx context.Context, before time.Time) ([]*persistence.Job, error) {
	args := m.Called(ctx, before)
	return To[[]*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadTranscript(ctx context.Context, audioAssetID string) (*persistence.Transcript, error) {
	args := m.Called(ctx, audioAssetID)
	return To[*persistence.Transcript](args.Get(0)), args.Error(1)
}

func (m *DB) LoadCycleTranscripts(ctx context.Context, cycleID string) ([]*persistence.Transcript, error) {
	args := m.Called(ctx, cycleID)
	return To[[]*persistence.Transcript](args.Get(0)), args.Error(1)
}

func (m *DB) SaveClipResult(ctx context.Context, jobID string, tr *persistence.Transcript) (*persistence.Cycle, error) {
	args := m.Called(ctx, jobID, tr)
	return To[*persistence.Cycle](args.Get(0)), args.Error(1)
}

func (m *DB) SaveClipFailure(ctx context.Context, jobID, errStr string) (*persistence.Cycle, error) {
	args := m.Called(ctx, jobID, errStr)
	return To[*persistence.Cycle](args.Get(0)), args.Error(1)
}

func (m *DB) ClaimStage(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	args := m.Called(ctx, req)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) SaveStory(ctx context.Context, jobID string, st *persistence.ExtractedStory) (*persistence.ExtractedStory, error) {
	args := m.Called(ctx, jobID, st)
	return To[*persistence.ExtractedStory](args.Get(0)), args.Error(1)
}

func (m *DB) LoadStory(ctx context.Context, projectID string) (*persistence.ExtractedStory, error) {
	args := m.Called(ctx, projectID)
	return To[*persistence.ExtractedStory](args.Get(0)), args.Error(1)
}

func (m *DB) SaveDraft(ctx context.Context, jobID string, d *persistence.Draft) (*persistence.Draft, error) {
	args := m.Called(ctx, jobID, d)
	return To[*persistence.Draft](args.Get(0)), args.Error(1)
}

func (m *DB) LoadDraft(ctx context.Context, id string) (*persistence.Draft, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Draft](args.Get(0)), args.Error(1)
}

func (m *DB) LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error) {
	args := m.Called(ctx, projectID)
	return To[*persistence.Draft](args.Get(0)), args.Error(1)
}

func (m *DB) LoadDrafts(ctx context.Context, projectID string) ([]*persistence.Draft, error) {
	args := m.Called(ctx, projectID)
	return To[[]*persistence.Draft](args.Get(0)), args.Error(1)
}

func (m *DB) CancelJobs(ctx context.Context, projectID string) (int64, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DB) CountIncomplete(ctx context.Context, projectID string, t status.JobType) (int, error) {
	args := m.Called(ctx, projectID, t)
	return args.Int(0), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, id, key string) error {
	args := m.Called(ctx, id, key)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, key string, value *int) error {
	args := m.Called(ctx, id, key, value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, audio *api.AudioData) (*api.Result, error) {
	args := m.Called(ctx, audio)
	return To[*api.Result](args.Get(0)), args.Error(1)
}

// Generator is text generation client mock
type Generator struct{ mock.Mock }

func (m *Generator) Extract(ctx context.Context, transcript string) (*persistence.StoryData, error) {
	args := m.Called(ctx, transcript)
	return To[*persistence.StoryData](args.Get(0)), args.Error(1)
}

func (m *Generator) Write(ctx context.Context, story *persistence.StoryData, transcript string) (*narrative.DraftData, error) {
	args := m.Called(ctx, story, transcript)
	return To[*narrative.DraftData](args.Get(0)), args.Error(1)
}

func (m *Generator) Regenerate(ctx context.Context, in *generator.RegenerateInput) (*persistence.Chapter, error) {
	args := m.Called(ctx, in)
	return To[*persistence.Chapter](args.Get(0)), args.Error(1)
}

// To converts mock value, nil gives zero value
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
