package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, project_id, cycle_id, type, status, progress, error, audio_asset_id, draft_id, attempts,
	output, created, started, completed`

func scanJob(row pgx.Row) (*persistence.Job, error) {
	var res persistence.Job
	var cycle, errStr, asset, draft sql.NullString
	var started, completed sql.NullTime
	var tp, st string
	var output []byte
	if err := row.Scan(&res.ID, &res.ProjectID, &cycle, &tp, &st, &res.Progress, &errStr, &asset, &draft,
		&res.Attempts, &output, &res.Created, &started, &completed); err != nil {
		return nil, err
	}
	res.Type, res.Status = status.JobType(tp), status.JobStatus(st)
	res.CycleID, res.Error = utils.FromSQLStr(cycle), utils.FromSQLStr(errStr)
	res.AudioAssetID, res.DraftID = utils.FromSQLStr(asset), utils.FromSQLStr(draft)
	res.Started, res.Completed = utils.FromSQLTime(started), utils.FromSQLTime(completed)
	if len(output) > 0 {
		res.Output = output
	}
	return &res, nil
}

func scanJobs(rows pgx.Rows, err error) ([]*persistence.Job, error) {
	if err != nil {
		return nil, fmt.Errorf("can't load jobs: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan job: %w", err)
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// Enqueue creates the job record and the queue message in one transaction
func (db *DB) Enqueue(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	var res *persistence.Job
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		res, err = db.insertJob(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (db *DB) insertJob(ctx context.Context, tx pgx.Tx, req *persistence.EnqueueRequest) (*persistence.Job, error) {
	queue := messages.QueueFor(req.Type)
	if queue == "" {
		return nil, fmt.Errorf("no queue for %s", req.Type)
	}
	res := &persistence.Job{ID: uuid.NewString(), ProjectID: req.ProjectID, CycleID: req.CycleID, Type: req.Type,
		Status: status.JobPending, AudioAssetID: req.AudioAssetID, DraftID: req.DraftID, Created: db.now()}
	if _, err := tx.Exec(ctx, `INSERT INTO jobs(id, project_id, cycle_id, type, status, progress, audio_asset_id,
	draft_id, priority, attempts, created) VALUES($1, $2, $3, $4, $5, 0, $6, $7, $8, 0, $9)`,
		res.ID, res.ProjectID, nullStr(res.CycleID), res.Type.String(), res.Status.String(), nullStr(res.AudioAssetID),
		nullStr(res.DraftID), req.Priority, res.Created); err != nil {
		return nil, fmt.Errorf("can't insert job: %w", err)
	}
	var msg interface{} = messages.NewJobMessage(req.ProjectID, req.CycleID, res.ID)
	if req.Payload != nil {
		msg = req.Payload(res.ID)
	}
	if err := db.enqueue(ctx, tx, queue, req.Priority, msg); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("ID", req.ProjectID).Str("job", res.ID).Str("type", res.Type.String()).Msg("enqueued")
	return res, nil
}

// LoadJob loads one job
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	res, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load job: %w", notFound(err))
	}
	return res, nil
}

// StartJob marks the job PROCESSING and counts the attempt
// Returns ErrJobClosed for a job already in a terminal state
func (db *DB) StartJob(ctx context.Context, id string) (*persistence.Job, error) {
	res, err := scanJob(db.pool.QueryRow(ctx, `UPDATE jobs SET status = $2, started = COALESCE(started, $3),
	attempts = attempts + 1 WHERE id = $1 AND status = ANY($4) RETURNING `+jobColumns,
		id, status.JobProcessing.String(), db.now(), statusStrings(pipeline.JobSources(status.JobProcessing))))
	if err == nil {
		return res, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("can't start job: %w", err)
	}
	if _, err := db.LoadJob(ctx, id); err != nil {
		return nil, err
	}
	return nil, persistence.ErrJobClosed
}

// CompleteJob marks an open job COMPLETED with the output
func (db *DB) CompleteJob(ctx context.Context, id string, output interface{}) error {
	_, err := completeJob(ctx, db.pool, db.now(), id, output)
	return err
}

func completeJob(ctx context.Context, q querier, now time.Time, id string, output interface{}) (*persistence.Job, error) {
	b, err := toJSON(output)
	if err != nil {
		return nil, fmt.Errorf("can't marshal output: %w", err)
	}
	return closeJob(ctx, q, `UPDATE jobs SET status = $2, progress = 100, output = $3, error = NULL, completed = $4
	WHERE id = $1 AND status = ANY($5) RETURNING `+jobColumns, id, status.JobCompleted.String(), b, now,
		statusStrings(pipeline.JobSources(status.JobCompleted)))
}

// FailJob marks an open job FAILED
func (db *DB) FailJob(ctx context.Context, id, errStr string) (*persistence.Job, error) {
	return failJob(ctx, db.pool, db.now(), id, errStr)
}

func failJob(ctx context.Context, q querier, now time.Time, id, errStr string) (*persistence.Job, error) {
	return closeJob(ctx, q, `UPDATE jobs SET status = $2, error = $3, completed = $4
	WHERE id = $1 AND status = ANY($5) RETURNING `+jobColumns, id, status.JobFailed.String(), errStr, now,
		statusStrings(pipeline.JobSources(status.JobFailed)))
}

func closeJob(ctx context.Context, q querier, query string, args ...any) (*persistence.Job, error) {
	res, err := scanJob(q.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, persistence.ErrJobClosed
		}
		return nil, fmt.Errorf("can't update job: %w", err)
	}
	goapp.Log.Info().Str("job", res.ID).Str("status", res.Status.String()).Msg("job closed")
	return res, nil
}

// CancelJob cancels one open job, a closed job is left as is
func (db *DB) CancelJob(ctx context.Context, id string) error {
	_, err := closeJob(ctx, db.pool, `UPDATE jobs SET status = $2, completed = $3
	WHERE id = $1 AND status = ANY($4) RETURNING `+jobColumns, id, status.JobCancelled.String(), db.now(),
		statusStrings(pipeline.JobSources(status.JobCancelled)))
	if errors.Is(err, persistence.ErrJobClosed) {
		return nil
	}
	return err
}

// CancelJobs cancels all open jobs of the project
func (db *DB) CancelJobs(ctx context.Context, projectID string) (int64, error) {
	return cancelJobs(ctx, db.pool, db.now(), projectID, false)
}

func cancelJobs(ctx context.Context, ex execer, now time.Time, projectID string, pipelineOnly bool) (int64, error) {
	cmd, err := ex.Exec(ctx, `UPDATE jobs SET status = $2, completed = $3
	WHERE project_id = $1 AND status = ANY($4) AND (NOT $5 OR cycle_id IS NOT NULL)`,
		projectID, status.JobCancelled.String(), now, statusStrings(pipeline.OpenJobStatuses()), pipelineOnly)
	if err != nil {
		return 0, fmt.Errorf("can't cancel jobs: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// UpdateProgress sets progress of an open job
func (db *DB) UpdateProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("wrong progress %d", progress)
	}
	_, err := db.pool.Exec(ctx, `UPDATE jobs SET progress = $2 WHERE id = $1 AND status = ANY($3)`,
		id, progress, statusStrings(pipeline.OpenJobStatuses()))
	if err != nil {
		return fmt.Errorf("can't update progress: %w", err)
	}
	return nil
}

// LoadJobs returns all project jobs ordered by creation
func (db *DB) LoadJobs(ctx context.Context, projectID string) ([]*persistence.Job, error) {
	return scanJobs(db.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE project_id = $1
		ORDER BY created, id`, projectID))
}

// CountIncomplete returns the number of open jobs of the type
func (db *DB) CountIncomplete(ctx context.Context, projectID string, t status.JobType) (int, error) {
	var res int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE project_id = $1 AND type = $2
	AND status = ANY($3)`, projectID, t.String(), statusStrings(pipeline.OpenJobStatuses())).Scan(&res); err != nil {
		return 0, fmt.Errorf("can't count jobs: %w", err)
	}
	return res, nil
}

// StuckJobs returns jobs processing since before the time
func (db *DB) StuckJobs(ctx context.Context, before time.Time) ([]*persistence.Job, error) {
	return scanJobs(db.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = $1 AND started < $2
		ORDER BY started LIMIT 100`, status.JobProcessing.String(), before))
}
