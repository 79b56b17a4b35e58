package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/airenas/memoir/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides persistence functionality
type DB interface {
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	SetProjectStatus(ctx context.Context, id, cycleID string, to status.ProjectStatus, from ...status.ProjectStatus) (bool, error)
	LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error)
	LoadAsset(ctx context.Context, id string) (*persistence.AudioAsset, error)
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	StartJob(ctx context.Context, id string) (*persistence.Job, error)
	CompleteJob(ctx context.Context, id string, output interface{}) error
	FailJob(ctx context.Context, id, errStr string) (*persistence.Job, error)
	CancelJob(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	StuckJobs(ctx context.Context, before time.Time) ([]*persistence.Job, error)
	LoadTranscript(ctx context.Context, audioAssetID string) (*persistence.Transcript, error)
	LoadCycleTranscripts(ctx context.Context, cycleID string) ([]*persistence.Transcript, error)
	SaveClipResult(ctx context.Context, jobID string, tr *persistence.Transcript) (*persistence.Cycle, error)
	SaveClipFailure(ctx context.Context, jobID, errStr string) (*persistence.Cycle, error)
	ClaimStage(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error)
	SaveStory(ctx context.Context, jobID string, st *persistence.ExtractedStory) (*persistence.ExtractedStory, error)
	LoadStory(ctx context.Context, projectID string) (*persistence.ExtractedStory, error)
	SaveDraft(ctx context.Context, jobID string, d *persistence.Draft) (*persistence.Draft, error)
	LoadDraft(ctx context.Context, id string) (*persistence.Draft, error)
}

// Filer loads and stores files
type Filer interface {
	LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Generator invokes the text generation service
type Generator interface {
	Extract(ctx context.Context, transcript string) (*persistence.StoryData, error)
	Write(ctx context.Context, story *persistence.StoryData, transcript string) (*narrative.DraftData, error)
}

// QueueConfig keeps settings of one stage pool
type QueueConfig struct {
	Workers int
	Timeout time.Duration
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	Transcriber tapi.Transcriber
	Generator   Generator
	Language    string

	STT, Extract, Write, Export QueueConfig

	MaxJobTime time.Duration
	ReapEvery  time.Duration
	Testing    bool
}

const (
	stageAttempts  = 3
	stageBackoff   = 5 * time.Second
	exportAttempts = 2
	exportBackoff  = 3 * time.Second
)

type pool struct {
	queue string
	cfg   QueueConfig
	wm    gue.WorkMap
}

// StartWorkerService starts one worker pool per stage queue and the stuck job reaper
// returns channel closed when all pools are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (<-chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}
	pools := []pool{
		{queue: messages.STT, cfg: data.STT, wm: gue.WorkMap{messages.STT: handler.Create(data, handleSTT,
			pipelineOpts[messages.STTMessage](data, data.STT).WithTerminal(sttFailed(data)))}},
		{queue: messages.Extract, cfg: data.Extract, wm: gue.WorkMap{messages.Extract: handler.Create(data, handleExtract,
			pipelineOpts[messages.ExtractMessage](data, data.Extract).WithTerminal(extractFailed(data)))}},
		{queue: messages.Write, cfg: data.Write, wm: gue.WorkMap{messages.Write: handler.Create(data, handleWrite,
			pipelineOpts[messages.WriteMessage](data, data.Write).WithTerminal(writeFailed(data)))}},
		{queue: messages.Export, cfg: data.Export, wm: gue.WorkMap{messages.Export: handler.Create(data, handleExport,
			handler.DefaultOpts[messages.ExportMessage]().WithAttempts(exportAttempts).WithTimeout(data.Export.Timeout).
				WithBackoff(handler.BackoffOrTest(data.Testing, handler.FixedBackoff(exportBackoff))).
				WithTerminal(exportFailed(data)))}},
	}
	wg := &sync.WaitGroup{}
	for _, p := range pools {
		gp, err := gue.NewWorkerPool(
			data.GueClient, p.wm, p.cfg.Workers,
			gue.WithPoolQueue(p.queue),
			gue.WithPoolLogger(utils.NewGueLoggerAdapter(p.queue)),
			gue.WithPoolPollInterval(500*time.Millisecond),
			gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
			gue.WithPoolID("memoir-"+p.queue),
		)
		if err != nil {
			return nil, fmt.Errorf("could not build gue workers pool %s: %w", p.queue, err)
		}
		wg.Add(1)
		go func(queue string, workers int) {
			defer wg.Done()
			goapp.Log.Info().Str("queue", queue).Int("workers", workers).Msg("Starting workers")
			if err := gp.Run(ctx); err != nil {
				goapp.Log.Error().Err(err).Str("queue", queue).Msg("pool error")
			}
			goapp.Log.Info().Str("queue", queue).Msg("Pool workers finished")
		}(p.queue, p.cfg.Workers)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		startReaper(ctx, data)
	}()
	res := make(chan struct{})
	go func() {
		wg.Wait()
		close(res)
	}()
	return res, nil
}

func pipelineOpts[TM any](data *ServiceData, cfg QueueConfig) *handler.Opts[TM] {
	return handler.DefaultOpts[TM]().WithAttempts(stageAttempts).WithTimeout(cfg.Timeout).
		WithBackoff(handler.BackoffOrTest(data.Testing, handler.ExponentialBackoff(stageBackoff)))
}

// JobTimeBudget returns the longest time a job may stay open while gue still retries it:
// every attempt running to its timeout plus the longest retry delays between them.
// A job is started once, so the reaper must not fire before this passes.
func JobTimeBudget(data *ServiceData) time.Duration {
	res := time.Duration(exportAttempts)*data.Export.Timeout + time.Duration(exportAttempts-1)*exportBackoff
	for _, c := range []QueueConfig{data.STT, data.Extract, data.Write} {
		d := time.Duration(stageAttempts) * c.Timeout
		for i := 1; i < stageAttempts; i++ {
			d += stageBackoff * time.Duration(1<<(i-1))
		}
		if d > res {
			res = d
		}
	}
	return res
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	for _, c := range [...]struct {
		name string
		cfg  QueueConfig
	}{{"stt", data.STT}, {"extract", data.Extract}, {"write", data.Write}, {"export", data.Export}} {
		if c.cfg.Workers < 1 {
			return fmt.Errorf("no %s worker count provided", c.name)
		}
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no Transcriber")
	}
	if data.Generator == nil {
		return fmt.Errorf("no Generator")
	}
	if data.MaxJobTime <= 0 || data.ReapEvery <= 0 {
		return fmt.Errorf("no reaper timings")
	}
	if b := JobTimeBudget(data); data.MaxJobTime < b {
		return fmt.Errorf("max job time %v is shorter than the retry budget %v", data.MaxJobTime, b)
	}
	return nil
}
