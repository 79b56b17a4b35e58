package worker

import (
	"context"
	"errors"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
)

func handleWrite(ctx context.Context, m *messages.WriteMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Msg("handling write")
	j, _, err := begin(ctx, &m.JobMessage, data)
	if err != nil || j == nil {
		return err
	}
	st, err := data.DB.LoadStory(ctx, m.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return utils.NewErrNonRetryable(err)
		}
		return fmt.Errorf("can't load story: %w", err)
	}
	trs, err := data.DB.LoadCycleTranscripts(ctx, m.CycleID)
	if err != nil {
		return fmt.Errorf("can't load transcripts: %w", err)
	}
	progress(ctx, j.ID, 10, data)
	dd, err := data.Generator.Write(ctx, &st.Data, narrative.CitedTranscripts(trs))
	if err != nil {
		return fmt.Errorf("can't write: %w", err)
	}
	d, err := narrative.BuildDraft(m.ID, dd)
	if err != nil {
		return err
	}
	saved, err := data.DB.SaveDraft(ctx, j.ID, d)
	if err != nil {
		if errors.Is(err, persistence.ErrJobClosed) || errors.Is(err, persistence.ErrStaleCycle) {
			goapp.Log.Info().Str("ID", m.ID).Str("job", j.ID).Msg("job closed meanwhile, drop draft")
			return nil
		}
		if errors.Is(err, persistence.ErrStatus) {
			return utils.NewErrNonRetryable(err)
		}
		return fmt.Errorf("can't save draft: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("draft", saved.ID).Int("version", saved.Version).
		Int("chapters", len(saved.Chapters)).Int("words", saved.WordCount).Msg("draft written")
	notifyStatus(ctx, m.ID, data)
	notifyInform(ctx, m.ID, amessages.InformTypeFinished, data)
	return nil
}

func writeFailed(data *ServiceData) func(context.Context, *messages.WriteMessage, error) error {
	return func(ctx context.Context, m *messages.WriteMessage, err error) error {
		return stageFailed(ctx, &m.JobMessage, err, data)
	}
}
