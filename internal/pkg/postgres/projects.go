package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
)

const projectColumns = `id, owner_id, email, title, status, cycle_id, deleted, created, updated`

func scanProject(row pgx.Row) (*persistence.Project, error) {
	var res persistence.Project
	var email, cycle sql.NullString
	var st string
	if err := row.Scan(&res.ID, &res.OwnerID, &email, &res.Title, &st, &cycle, &res.Deleted,
		&res.Created, &res.Updated); err != nil {
		return nil, err
	}
	res.OwnerEmail, res.CycleID, res.Status = utils.FromSQLStr(email), utils.FromSQLStr(cycle), status.ProjectStatus(st)
	return &res, nil
}

// InsertProject inserts a new project
func (db *DB) InsertProject(ctx context.Context, p *persistence.Project) error {
	now := db.now()
	p.Created, p.Updated = now, now
	if p.Status == "" {
		p.Status = status.Draft
	}
	_, err := db.pool.Exec(ctx, `INSERT INTO projects(id, owner_id, email, title, status, deleted, created, updated)
	VALUES($1, $2, $3, $4, $5, FALSE, $6, $6)`, p.ID, p.OwnerID, nullStr(p.OwnerEmail), p.Title, p.Status.String(), now)
	if err != nil {
		return fmt.Errorf("can't insert project: %w", err)
	}
	return nil
}

// LoadProject loads a not deleted project
func (db *DB) LoadProject(ctx context.Context, id string) (*persistence.Project, error) {
	res, err := scanProject(db.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE id = $1 AND NOT deleted`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load project: %w", notFound(err))
	}
	return res, nil
}

// SetProjectStatus updates the status if the project is in one of the from states
// Empty cycleID skips the cycle condition
func (db *DB) SetProjectStatus(ctx context.Context, id, cycleID string, to status.ProjectStatus,
	from ...status.ProjectStatus) (bool, error) {
	return setProjectStatus(ctx, db.pool, db.now(), id, cycleID, to, from)
}

func setProjectStatus(ctx context.Context, ex execer, now time.Time, id, cycleID string, to status.ProjectStatus,
	from []status.ProjectStatus) (bool, error) {
	cmd, err := ex.Exec(ctx, `UPDATE projects SET status = $2, updated = $3
	WHERE id = $1 AND NOT deleted AND status = ANY($4) AND ($5 = '' OR cycle_id = $5)`,
		id, to.String(), now, statusStrings(from), cycleID)
	if err != nil {
		return false, fmt.Errorf("can't update project status: %w", err)
	}
	ok := cmd.RowsAffected() == 1
	goapp.Log.Debug().Str("ID", id).Str("status", to.String()).Bool("updated", ok).Msg("project status")
	return ok, nil
}

// DeleteProject marks the project as deleted and cancels its open jobs
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE projects SET deleted = TRUE, updated = $2 WHERE id = $1 AND NOT deleted`,
			id, db.now())
		if err != nil {
			return fmt.Errorf("can't delete project: %w", err)
		}
		if cmd.RowsAffected() != 1 {
			return fmt.Errorf("can't delete project: %w", persistence.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `UPDATE cycles SET cancelled = TRUE WHERE project_id = $1`, id); err != nil {
			return fmt.Errorf("can't cancel cycles: %w", err)
		}
		n, err := cancelJobs(ctx, tx, db.now(), id, false)
		if err != nil {
			return err
		}
		goapp.Log.Info().Str("ID", id).Int64("cancelled", n).Msg("project deleted")
		return nil
	})
}

func lockProject(ctx context.Context, tx pgx.Tx, id string) (*persistence.Project, error) {
	res, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE id = $1 AND NOT deleted FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("can't lock project: %w", notFound(err))
	}
	return res, nil
}

func statusStrings[T fmt.Stringer](sts []T) []string {
	res := make([]string, 0, len(sts))
	for _, s := range sts {
		res = append(res, s.String())
	}
	return res
}
