package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
)

func handleSTT(ctx context.Context, m *messages.STTMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Str("asset", m.AudioAssetID).Msg("handling stt")
	j, p, err := begin(ctx, &m.JobMessage, data)
	if err != nil {
		return err
	}
	if j == nil {
		if isCurrent(p, m.CycleID) {
			return resumeFanIn(ctx, m.CycleID, data)
		}
		return nil
	}
	tr, err := data.DB.LoadTranscript(ctx, m.AudioAssetID)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("can't load transcript: %w", err)
		}
		if tr, err = transcribe(ctx, j, m.AudioAssetID, data); err != nil {
			return err
		}
	} else {
		goapp.Log.Info().Str("ID", m.ID).Str("transcript", tr.ID).Msg("reuse transcript")
	}
	c, err := data.DB.SaveClipResult(ctx, j.ID, tr)
	if err != nil {
		if errors.Is(err, persistence.ErrJobClosed) {
			goapp.Log.Info().Str("ID", m.ID).Str("job", j.ID).Msg("job closed meanwhile, drop result")
			return nil
		}
		return fmt.Errorf("can't save transcript: %w", err)
	}
	notifyStatus(ctx, m.ID, data)
	return onClipDone(ctx, c, data)
}

func transcribe(ctx context.Context, j *persistence.Job, assetID string, data *ServiceData) (*persistence.Transcript, error) {
	a, err := data.DB.LoadAsset(ctx, assetID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, utils.NewErrNonRetryable(err)
		}
		return nil, fmt.Errorf("can't load asset: %w", err)
	}
	f, err := data.Filer.LoadFile(ctx, a.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("can't load audio: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("can't read audio: %w", err)
	}
	progress(ctx, j.ID, 10, data)
	res, err := data.Transcriber.Transcribe(ctx, &tapi.AudioData{Name: a.FileName, MimeType: a.MimeType,
		Language: data.Language, Content: content})
	if err != nil {
		return nil, fmt.Errorf("can't transcribe: %w", err)
	}
	if err := tapi.Validate(res); err != nil {
		return nil, utils.NewErrNonRetryable(err)
	}
	progress(ctx, j.ID, 90, data)
	goapp.Log.Info().Str("ID", j.ProjectID).Int("clip", a.ClipIndex).Int("segments", len(res.Segments)).Msg("transcribed")
	return &persistence.Transcript{ProjectID: a.ProjectID, AudioAssetID: a.ID, ClipIndex: a.ClipIndex,
		Text: res.Text, Language: res.Language, Segments: res.Segments}, nil
}

// resumeFanIn repeats the fan-in check, ClaimStage keeps it idempotent
func resumeFanIn(ctx context.Context, cycleID string, data *ServiceData) error {
	c, err := data.DB.LoadCycle(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("can't load cycle: %w", err)
	}
	return onClipDone(ctx, c, data)
}

func sttFailed(data *ServiceData) func(context.Context, *messages.STTMessage, error) error {
	return func(ctx context.Context, m *messages.STTMessage, err error) error {
		goapp.Log.Warn().Str("ID", m.ID).Str("job", m.JobID).Str("err", errText(err)).Msg("stt failed")
		c, errS := data.DB.SaveClipFailure(ctx, m.JobID, errText(err))
		if errS != nil {
			if errors.Is(errS, persistence.ErrJobClosed) {
				return nil
			}
			return fmt.Errorf("can't save clip failure: %w", errS)
		}
		notifyStatus(ctx, m.ID, data)
		return onClipDone(ctx, c, data)
	}
}
