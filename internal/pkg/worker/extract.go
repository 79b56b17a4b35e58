package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
)

func handleExtract(ctx context.Context, m *messages.ExtractMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Msg("handling extract")
	j, p, err := begin(ctx, &m.JobMessage, data)
	if err != nil {
		return err
	}
	if j == nil {
		if isCurrent(p, m.CycleID) {
			return resumeWrite(ctx, m, data)
		}
		return nil
	}
	trs, err := data.DB.LoadCycleTranscripts(ctx, m.CycleID)
	if err != nil {
		return fmt.Errorf("can't load transcripts: %w", err)
	}
	if len(trs) == 0 {
		return utils.NewErrNonRetryable(fmt.Errorf("no transcripts for cycle %s", m.CycleID))
	}
	progress(ctx, j.ID, 10, data)
	sd, err := data.Generator.Extract(ctx, narrative.CombineTranscripts(trs))
	if err != nil {
		return fmt.Errorf("can't extract: %w", err)
	}
	st, err := data.DB.SaveStory(ctx, j.ID, &persistence.ExtractedStory{ProjectID: m.ID, CycleID: m.CycleID, Data: *sd})
	if err != nil {
		if errors.Is(err, persistence.ErrJobClosed) {
			goapp.Log.Info().Str("ID", m.ID).Str("job", j.ID).Msg("job closed meanwhile, drop story")
			return nil
		}
		return fmt.Errorf("can't save story: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("story", st.ID).Int("version", st.Version).Int("people", len(sd.People)).
		Int("episodes", len(sd.KeyEpisodes)).Msg("extracted")
	notifyStatus(ctx, m.ID, data)
	return claimWrite(ctx, m.ID, m.CycleID, st.ID, data)
}

// resumeWrite claims WRITE again if the extraction is done but the job was redelivered
func resumeWrite(ctx context.Context, m *messages.ExtractMessage, data *ServiceData) error {
	j, err := data.DB.LoadJob(ctx, m.JobID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	if j.Status != status.JobCompleted {
		return nil
	}
	st, err := data.DB.LoadStory(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load story: %w", err)
	}
	if st.CycleID != m.CycleID {
		return nil
	}
	return claimWrite(ctx, m.ID, m.CycleID, st.ID, data)
}

func extractFailed(data *ServiceData) func(context.Context, *messages.ExtractMessage, error) error {
	return func(ctx context.Context, m *messages.ExtractMessage, err error) error {
		return stageFailed(ctx, &m.JobMessage, err, data)
	}
}

func stageFailed(ctx context.Context, m *messages.JobMessage, err error, data *ServiceData) error {
	goapp.Log.Warn().Str("ID", m.ID).Str("job", m.JobID).Str("err", errText(err)).Msg("stage failed")
	if _, errF := data.DB.FailJob(ctx, m.JobID, errText(err)); errF != nil {
		if errors.Is(errF, persistence.ErrJobClosed) {
			return nil
		}
		return fmt.Errorf("can't fail job: %w", errF)
	}
	return failProject(ctx, m.ID, m.CycleID, data)
}
