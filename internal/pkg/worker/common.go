package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
)

// begin applies the skip rule and marks the job PROCESSING
// nil job means the message is acknowledged without work
func begin(ctx context.Context, m *messages.JobMessage, data *ServiceData) (*persistence.Job, *persistence.Project, error) {
	p, err := data.DB.LoadProject(ctx, m.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Msg("no project, skip")
			return nil, nil, data.DB.CancelJob(ctx, m.JobID)
		}
		return nil, nil, fmt.Errorf("can't load project: %w", err)
	}
	if m.CycleID != "" && p.CycleID != m.CycleID {
		goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Str("cycle", m.CycleID).Msg("stale cycle, skip")
		return nil, p, data.DB.CancelJob(ctx, m.JobID)
	}
	j, err := data.DB.StartJob(ctx, m.JobID)
	if err != nil {
		if errors.Is(err, persistence.ErrJobClosed) {
			goapp.Log.Info().Str("ID", m.ID).Str("job", m.JobID).Msg("job closed, skip")
			return nil, p, nil
		}
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, utils.NewErrNonRetryable(err)
		}
		return nil, nil, fmt.Errorf("can't start job: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("job", j.ID).Str("type", j.Type.String()).Int("attempt", j.Attempts).Msg("started")
	return j, p, nil
}

func isCurrent(p *persistence.Project, cycleID string) bool {
	return p != nil && cycleID != "" && p.CycleID == cycleID
}

// onClipDone reacts to the cycle counters after one clip reached a terminal state
func onClipDone(ctx context.Context, c *persistence.Cycle, data *ServiceData) error {
	d := pipeline.Decide(c)
	goapp.Log.Info().Str("ID", c.ProjectID).Str("cycle", c.ID).Str("decision", d.String()).Msg("fan-in")
	switch d {
	case pipeline.Advance:
		return claimExtract(ctx, c, data)
	case pipeline.Fail:
		return failProject(ctx, c.ProjectID, c.ID, data)
	}
	return nil
}

func claimExtract(ctx context.Context, c *persistence.Cycle, data *ServiceData) error {
	trs, err := data.DB.LoadCycleTranscripts(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("can't load transcripts: %w", err)
	}
	ids := make([]string, 0, len(trs))
	for _, t := range trs {
		ids = append(ids, t.ID)
	}
	j, err := data.DB.ClaimStage(ctx, &persistence.EnqueueRequest{ProjectID: c.ProjectID, CycleID: c.ID,
		Type: status.Extract, After: status.STT, Payload: func(jobID string) interface{} {
			return &messages.ExtractMessage{JobMessage: messages.NewJobMessage(c.ProjectID, c.ID, jobID), TranscriptIDs: ids}
		}})
	if err != nil {
		return fmt.Errorf("can't claim extract: %w", err)
	}
	if j != nil {
		notifyStatus(ctx, c.ProjectID, data)
	}
	return nil
}

func claimWrite(ctx context.Context, projectID, cycleID, storyID string, data *ServiceData) error {
	j, err := data.DB.ClaimStage(ctx, &persistence.EnqueueRequest{ProjectID: projectID, CycleID: cycleID,
		Type: status.Write, After: status.Extract, Payload: func(jobID string) interface{} {
			return &messages.WriteMessage{JobMessage: messages.NewJobMessage(projectID, cycleID, jobID), StoryID: storyID}
		}})
	if err != nil {
		return fmt.Errorf("can't claim write: %w", err)
	}
	if j != nil {
		notifyStatus(ctx, projectID, data)
	}
	return nil
}

// failProject moves the cycle's project to FAILED once
func failProject(ctx context.Context, projectID, cycleID string, data *ServiceData) error {
	to, _ := pipeline.Target(pipeline.StageFailed)
	ok, err := data.DB.SetProjectStatus(ctx, projectID, cycleID, to, pipeline.Sources(pipeline.StageFailed)...)
	if err != nil {
		return fmt.Errorf("can't fail project: %w", err)
	}
	if ok {
		goapp.Log.Warn().Str("ID", projectID).Str("cycle", cycleID).Msg("project failed")
		notifyStatus(ctx, projectID, data)
		notifyInform(ctx, projectID, amessages.InformTypeFailed, data)
	}
	return nil
}

func notifyStatus(ctx context.Context, projectID string, data *ServiceData) {
	if err := data.MsgSender.SendMessage(ctx, &amessages.QueueMessage{ID: projectID}, messages.StatusChange); err != nil {
		goapp.Log.Error().Err(err).Str("ID", projectID).Msg("can't send status change")
	}
}

func notifyInform(ctx context.Context, projectID, informType string, data *ServiceData) {
	if err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{QueueMessage: amessages.QueueMessage{ID: projectID},
		Type: informType, At: time.Now()}, messages.Inform); err != nil {
		goapp.Log.Error().Err(err).Str("ID", projectID).Msg("can't send inform")
	}
}

func progress(ctx context.Context, jobID string, p int, data *ServiceData) {
	if err := data.DB.UpdateProgress(ctx, jobID, p); err != nil {
		goapp.Log.Warn().Err(err).Str("job", jobID).Msg("can't update progress")
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return goapp.Sanitize(err.Error())
}
