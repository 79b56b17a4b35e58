package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const draftColumns = `id, project_id, version, title, summary, chapters, content, word_count, page_count, is_active, created`

func scanDraft(row pgx.Row) (*persistence.Draft, error) {
	var res persistence.Draft
	var chapters []byte
	if err := row.Scan(&res.ID, &res.ProjectID, &res.Version, &res.Title, &res.Summary, &chapters, &res.Content,
		&res.WordCount, &res.PageCount, &res.Active, &res.Created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chapters, &res.Chapters); err != nil {
		return nil, fmt.Errorf("can't unmarshal chapters: %w", err)
	}
	return &res, nil
}

// SaveDraft stores a new active draft version of the project
// With jobID it also completes the WRITE job and moves the project to COMPLETED,
// all in one transaction
func (db *DB) SaveDraft(ctx context.Context, jobID string, d *persistence.Draft) (*persistence.Draft, error) {
	chapters, err := json.Marshal(d.Chapters)
	if err != nil {
		return nil, fmt.Errorf("can't marshal chapters: %w", err)
	}
	res := *d
	err = db.inTx(ctx, func(tx pgx.Tx) error {
		now := db.now()
		p, err := lockProject(ctx, tx, d.ProjectID)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM drafts WHERE project_id = $1`,
			p.ID).Scan(&res.Version); err != nil {
			return fmt.Errorf("can't get draft version: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE drafts SET is_active = FALSE WHERE project_id = $1 AND is_active`,
			p.ID); err != nil {
			return fmt.Errorf("can't deactivate drafts: %w", err)
		}
		res.ID, res.Active, res.Created = uuid.NewString(), true, now
		if _, err := tx.Exec(ctx, `INSERT INTO drafts(`+draftColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)`, res.ID, res.ProjectID, res.Version, res.Title,
			res.Summary, chapters, res.Content, res.WordCount, res.PageCount, now); err != nil {
			return fmt.Errorf("can't insert draft: %w", err)
		}
		if jobID == "" {
			return nil
		}
		j, err := completeJob(ctx, tx, now, jobID, map[string]interface{}{"draftId": res.ID, "version": res.Version})
		if err != nil {
			return err
		}
		if j.CycleID != p.CycleID {
			return persistence.ErrStaleCycle
		}
		to, from, err := eventStatus(j.Type)
		if err != nil {
			return err
		}
		ok, err := setProjectStatus(ctx, tx, now, p.ID, j.CycleID, to, from)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: project is %s", persistence.ErrStatus, p.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("ID", res.ProjectID).Str("draft", res.ID).Int("version", res.Version).Msg("draft saved")
	return &res, nil
}

// eventStatus returns the project state a completed stage leads to and the states it may start from
func eventStatus(t status.JobType) (status.ProjectStatus, []status.ProjectStatus, error) {
	ev, ok := pipeline.CompletionEvent(t)
	if !ok {
		return "", nil, fmt.Errorf("%s is not a stage", t)
	}
	to, ok := pipeline.Target(ev)
	if !ok {
		return "", nil, fmt.Errorf("no single target of %s", ev)
	}
	return to, pipeline.Sources(ev), nil
}

// LoadDraft loads a draft by ID
func (db *DB) LoadDraft(ctx context.Context, id string) (*persistence.Draft, error) {
	res, err := scanDraft(db.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load draft: %w", notFound(err))
	}
	return res, nil
}

// LoadActiveDraft loads the active project draft
func (db *DB) LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error) {
	res, err := scanDraft(db.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts
		WHERE project_id = $1 AND is_active`, projectID))
	if err != nil {
		return nil, fmt.Errorf("can't load draft: %w", notFound(err))
	}
	return res, nil
}

// LoadDrafts returns all project drafts, the newest first
func (db *DB) LoadDrafts(ctx context.Context, projectID string) ([]*persistence.Draft, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+draftColumns+` FROM drafts WHERE project_id = $1
		ORDER BY version DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("can't load drafts: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Draft{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan draft: %w", err)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
