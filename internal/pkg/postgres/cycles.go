package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cycleColumns = `id, project_id, clips, pending, succeeded, failed, policy, min_clips, extract_job_id,
	write_job_id, cancelled, created`

func scanCycle(row pgx.Row) (*persistence.Cycle, error) {
	var res persistence.Cycle
	var extract, write sql.NullString
	var policy string
	if err := row.Scan(&res.ID, &res.ProjectID, &res.Clips, &res.Pending, &res.Succeeded, &res.Failed, &policy,
		&res.MinClips, &extract, &write, &res.Cancelled, &res.Created); err != nil {
		return nil, err
	}
	res.Policy = persistence.Policy(policy)
	res.ExtractJobID, res.WriteJobID = utils.FromSQLStr(extract), utils.FromSQLStr(write)
	return &res, nil
}

// StartCycle opens a new processing cycle of the project:
// cancels open pipeline jobs, moves the project to PROCESSING and enqueues one STT job per clip
func (db *DB) StartCycle(ctx context.Context, req *persistence.CycleRequest) (*persistence.Cycle, []*persistence.Job, error) {
	var res *persistence.Cycle
	var jobs []*persistence.Job
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockProject(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		assets, err := loadAssets(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if err := pipeline.CanSubmit(p.Status, len(assets)); err != nil {
			return fmt.Errorf("%w: %v", persistence.ErrStatus, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE cycles SET cancelled = TRUE WHERE project_id = $1 AND NOT cancelled`,
			p.ID); err != nil {
			return fmt.Errorf("can't cancel cycles: %w", err)
		}
		n, err := cancelJobs(ctx, tx, db.now(), p.ID, true)
		if err != nil {
			return err
		}
		res = &persistence.Cycle{ID: uuid.NewString(), ProjectID: p.ID, Clips: len(assets), Pending: len(assets),
			Policy: req.Policy, MinClips: req.MinClips, Created: db.now()}
		if res.Policy == "" {
			res.Policy = persistence.PolicyStrict
		}
		if _, err := tx.Exec(ctx, `INSERT INTO cycles(id, project_id, clips, pending, succeeded, failed, policy,
		min_clips, cancelled, created) VALUES($1, $2, $3, $3, 0, 0, $4, $5, FALSE, $6)`,
			res.ID, res.ProjectID, res.Clips, string(res.Policy), res.MinClips, res.Created); err != nil {
			return fmt.Errorf("can't insert cycle: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE projects SET status = $2, cycle_id = $3, updated = $4 WHERE id = $1`,
			p.ID, status.Processing.String(), res.ID, res.Created); err != nil {
			return fmt.Errorf("can't update project: %w", err)
		}
		for _, a := range assets {
			a := a
			j, err := db.insertJob(ctx, tx, &persistence.EnqueueRequest{ProjectID: p.ID, CycleID: res.ID, Type: status.STT,
				AudioAssetID: a.ID, Priority: req.Priority, Payload: func(jobID string) interface{} {
					return &messages.STTMessage{JobMessage: messages.NewJobMessage(p.ID, res.ID, jobID), AudioAssetID: a.ID}
				}})
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		goapp.Log.Info().Str("ID", p.ID).Str("cycle", res.ID).Int("clips", res.Clips).Int64("cancelled", n).
			Str("from", p.Status.String()).Msg("cycle started")
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, jobs, nil
}

// LoadCycle loads one cycle
func (db *DB) LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error) {
	res, err := scanCycle(db.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load cycle: %w", notFound(err))
	}
	return res, nil
}

// SaveClipResult stores the transcript, completes the STT job and counts the clip down
func (db *DB) SaveClipResult(ctx context.Context, jobID string, tr *persistence.Transcript) (*persistence.Cycle, error) {
	var res *persistence.Cycle
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertTranscript(ctx, tx, db.now(), tr); err != nil {
			return err
		}
		j, err := completeJob(ctx, tx, db.now(), jobID, map[string]string{"transcriptId": tr.ID})
		if err != nil {
			return err
		}
		res, err = countDown(ctx, tx, j.CycleID, "succeeded")
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SaveClipFailure fails the STT job and counts the clip down
func (db *DB) SaveClipFailure(ctx context.Context, jobID, errStr string) (*persistence.Cycle, error) {
	var res *persistence.Cycle
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		j, err := failJob(ctx, tx, db.now(), jobID, errStr)
		if err != nil {
			return err
		}
		res, err = countDown(ctx, tx, j.CycleID, "failed")
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// countDown is executed only after the job transition succeeded, so one job decrements once
func countDown(ctx context.Context, tx pgx.Tx, cycleID, counter string) (*persistence.Cycle, error) {
	if cycleID == "" {
		return nil, fmt.Errorf("job has no cycle")
	}
	res, err := scanCycle(tx.QueryRow(ctx, `UPDATE cycles SET pending = pending - 1, `+counter+` = `+counter+` + 1
	WHERE id = $1 AND pending > 0 RETURNING `+cycleColumns, cycleID))
	if err != nil {
		return nil, fmt.Errorf("can't count down cycle %s: %w", cycleID, notFound(err))
	}
	goapp.Log.Info().Str("cycle", res.ID).Int("pending", res.Pending).Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).Msg("clip done")
	return res, nil
}

// ClaimStage creates the cycle's single downstream job
// Returns nil job if the stage was already claimed or the cycle is cancelled
func (db *DB) ClaimStage(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	if next, ok := pipeline.NextStage(req.After); !ok || next != req.Type {
		return nil, fmt.Errorf("%w: can't claim %s after %s", pipeline.ErrTransition, req.Type, req.After)
	}
	column := ""
	switch req.Type {
	case status.Extract:
		column = "extract_job_id"
	case status.Write:
		column = "write_job_id"
	default:
		return nil, fmt.Errorf("can't claim stage %s", req.Type)
	}
	var res *persistence.Job
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		j, err := db.insertJob(ctx, tx, req)
		if err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `UPDATE cycles SET `+column+` = $2 WHERE id = $1 AND `+column+` IS NULL
			AND NOT cancelled`, req.CycleID, j.ID)
		if err != nil {
			return fmt.Errorf("can't claim stage: %w", err)
		}
		if cmd.RowsAffected() != 1 {
			return errClaimed
		}
		res = j
		return nil
	})
	if errors.Is(err, errClaimed) {
		goapp.Log.Info().Str("cycle", req.CycleID).Str("type", req.Type.String()).Msg("stage already claimed")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

var errClaimed = errors.New("stage claimed")
