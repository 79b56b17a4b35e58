package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/export"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
)

func handleExport(ctx context.Context, m *messages.ExportMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Str("format", m.Format).Msg("handling export")
	j, _, err := begin(ctx, &m.JobMessage, data)
	if err != nil || j == nil {
		return err
	}
	f, err := jobFormat(j, m.Format)
	if err != nil {
		return utils.NewErrNonRetryable(err)
	}
	d, err := data.DB.LoadDraft(ctx, m.DraftID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return utils.NewErrNonRetryable(err)
		}
		return fmt.Errorf("can't load draft: %w", err)
	}
	if d.ProjectID != m.ID {
		return utils.NewErrNonRetryable(fmt.Errorf("draft %s is not of project %s", d.ID, m.ID))
	}
	r, err := export.Render(f, d)
	if err != nil {
		return err
	}
	progress(ctx, j.ID, 50, data)
	key := utils.MakeExportKey(m.ID, d.ID, d.Version, r.Ext)
	if err := data.Filer.SaveFile(ctx, key, bytes.NewReader(r.Data), int64(len(r.Data)), r.ContentType); err != nil {
		return fmt.Errorf("can't save export: %w", err)
	}
	err = data.DB.CompleteJob(ctx, j.ID, &persistence.ExportOutput{Format: string(f), Key: key, Size: int64(len(r.Data)),
		ContentType: r.ContentType, DraftID: d.ID, DraftVersion: d.Version})
	if err != nil {
		if errors.Is(err, persistence.ErrJobClosed) {
			return nil
		}
		return fmt.Errorf("can't complete job: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("key", key).Int("bytes", len(r.Data)).Msg("exported")
	notifyStatus(ctx, m.ID, data)
	return nil
}

// jobFormat takes the format from the job record, the message may only repeat it
func jobFormat(j *persistence.Job, msgFormat string) (export.Format, error) {
	res, err := export.FormatOf(j.Type)
	if err != nil {
		return "", err
	}
	if msgFormat == "" {
		return res, nil
	}
	f, err := export.ParseFormat(msgFormat)
	if err != nil {
		return "", err
	}
	if f != res {
		return "", fmt.Errorf("format %s does not match job type %s", f, j.Type)
	}
	return res, nil
}

// exportFailed marks only the export job FAILED
func exportFailed(data *ServiceData) func(context.Context, *messages.ExportMessage, error) error {
	return func(ctx context.Context, m *messages.ExportMessage, err error) error {
		goapp.Log.Warn().Str("ID", m.ID).Str("job", m.JobID).Str("err", errText(err)).Msg("export failed")
		if _, errF := data.DB.FailJob(ctx, m.JobID, errText(err)); errF != nil && !errors.Is(errF, persistence.ErrJobClosed) {
			return fmt.Errorf("can't fail job: %w", errF)
		}
		notifyStatus(ctx, m.ID, data)
		return nil
	}
}
