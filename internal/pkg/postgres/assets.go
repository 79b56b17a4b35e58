package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/pipeline"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	assetColumns    = `id, project_id, clip_index, storage_key, file_name, mime_type, size, duration, created`
	uniqueViolation = "23505"
)

func scanAsset(row pgx.Row) (*persistence.AudioAsset, error) {
	var res persistence.AudioAsset
	if err := row.Scan(&res.ID, &res.ProjectID, &res.ClipIndex, &res.StorageKey, &res.FileName, &res.MimeType,
		&res.Size, &res.Duration, &res.Created); err != nil {
		return nil, err
	}
	return &res, nil
}

// InsertAsset adds a clip to the project and moves the project to UPLOADING
func (db *DB) InsertAsset(ctx context.Context, a *persistence.AudioAsset) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockProject(ctx, tx, a.ProjectID)
		if err != nil {
			return err
		}
		to, err := pipeline.Next(p.Status, pipeline.AssetAdded)
		if err != nil {
			return fmt.Errorf("%w: %v", persistence.ErrStatus, err)
		}
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM audio_assets WHERE project_id = $1`, a.ProjectID).Scan(&n); err != nil {
			return fmt.Errorf("can't count assets: %w", err)
		}
		if n >= utils.MaxClips {
			return fmt.Errorf("%w: max %d clips", persistence.ErrLimit, utils.MaxClips)
		}
		a.Created = db.now()
		if _, err := tx.Exec(ctx, `INSERT INTO audio_assets(`+assetColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`, a.ID, a.ProjectID, a.ClipIndex, a.StorageKey, a.FileName,
			a.MimeType, a.Size, a.Duration, a.Created); err != nil {
			return fmt.Errorf("can't insert asset: %w", err)
		}
		// deferred unique constraint is checked at commit, so check the clip index here
		var dup bool
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) > 1 FROM audio_assets WHERE project_id = $1 AND clip_index = $2`,
			a.ProjectID, a.ClipIndex).Scan(&dup); err != nil {
			return fmt.Errorf("can't check clip index: %w", err)
		}
		if dup {
			return fmt.Errorf("%w: clip %d", persistence.ErrDuplicate, a.ClipIndex)
		}
		if _, err := setProjectStatus(ctx, tx, a.Created, p.ID, "", to, []status.ProjectStatus{p.Status}); err != nil {
			return err
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	}
	return err
}

// LoadAssets returns project clips ordered by clip index
func (db *DB) LoadAssets(ctx context.Context, projectID string) ([]*persistence.AudioAsset, error) {
	return loadAssets(ctx, db.pool, projectID)
}

func loadAssets(ctx context.Context, q querier, projectID string) ([]*persistence.AudioAsset, error) {
	rows, err := q.Query(ctx, `SELECT `+assetColumns+` FROM audio_assets WHERE project_id = $1
		ORDER BY clip_index`, projectID)
	if err != nil {
		return nil, fmt.Errorf("can't load assets: %w", err)
	}
	defer rows.Close()
	res := []*persistence.AudioAsset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan asset: %w", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LoadAsset loads one clip
func (db *DB) LoadAsset(ctx context.Context, id string) (*persistence.AudioAsset, error) {
	res, err := scanAsset(db.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM audio_assets WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load asset: %w", notFound(err))
	}
	return res, nil
}

// DeleteAsset removes the clip and renumbers the rest from 1
func (db *DB) DeleteAsset(ctx context.Context, projectID, assetID string) (*persistence.AudioAsset, error) {
	var res *persistence.AudioAsset
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !pipeline.CanEditAssets(p.Status) {
			return fmt.Errorf("%w: can't edit assets in %s", persistence.ErrStatus, p.Status)
		}
		res, err = scanAsset(tx.QueryRow(ctx, `DELETE FROM audio_assets WHERE id = $1 AND project_id = $2
			RETURNING `+assetColumns, assetID, projectID))
		if err != nil {
			return fmt.Errorf("can't delete asset: %w", notFound(err))
		}
		if _, err := tx.Exec(ctx, `UPDATE audio_assets a SET clip_index = r.rn
		FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY clip_index) AS rn FROM audio_assets WHERE project_id = $1) r
		WHERE a.id = r.id AND a.clip_index <> r.rn`, projectID); err != nil {
			return fmt.Errorf("can't renumber assets: %w", err)
		}
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM audio_assets WHERE project_id = $1`, projectID).Scan(&n); err != nil {
			return fmt.Errorf("can't count assets: %w", err)
		}
		if n == 0 {
			if to, err := pipeline.Next(p.Status, pipeline.AssetsCleared); err == nil && to != p.Status {
				if _, err := setProjectStatus(ctx, tx, db.now(), p.ID, "", to, []status.ProjectStatus{p.Status}); err != nil {
					return err
				}
			}
		}
		goapp.Log.Info().Str("ID", projectID).Str("asset", assetID).Int("left", n).Msg("asset deleted")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
