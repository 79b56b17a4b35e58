package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"go.uber.org/multierr"
)

const reapReason = "job timeout"

func startReaper(ctx context.Context, data *ServiceData) {
	goapp.Log.Info().Dur("every", data.ReapEvery).Dur("maxJobTime", data.MaxJobTime).Msg("Starting reaper")
	ticker := time.NewTicker(data.ReapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := reap(ctx, data, time.Now()); err != nil {
				goapp.Log.Error().Err(err).Msg("reap")
			}
		case <-ctx.Done():
			goapp.Log.Info().Msg("Stopped reaper")
			return
		}
	}
}

// reap fails jobs that stay PROCESSING longer than MaxJobTime
func reap(ctx context.Context, data *ServiceData, now time.Time) error {
	jobs, err := data.DB.StuckJobs(ctx, now.Add(-data.MaxJobTime))
	if err != nil {
		return fmt.Errorf("can't load stuck jobs: %w", err)
	}
	var res error
	for _, j := range jobs {
		goapp.Log.Warn().Str("ID", j.ProjectID).Str("job", j.ID).Str("type", j.Type.String()).Msg("reaping")
		res = multierr.Append(res, reapJob(ctx, j, data))
	}
	return res
}

func reapJob(ctx context.Context, j *persistence.Job, data *ServiceData) error {
	m := messages.NewJobMessage(j.ProjectID, j.CycleID, j.ID)
	switch {
	case j.Type == status.STT:
		return sttFailed(data)(ctx, &messages.STTMessage{JobMessage: m, AudioAssetID: j.AudioAssetID}, errors.New(reapReason))
	case j.Type.IsExport():
		return exportFailed(data)(ctx, &messages.ExportMessage{JobMessage: m, DraftID: j.DraftID}, errors.New(reapReason))
	}
	return stageFailed(ctx, &m, errors.New(reapReason), data)
}
