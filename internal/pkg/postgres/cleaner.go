package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type cleanTable struct {
	name, column string
}

// Cleaner removes all project records
type Cleaner struct {
	pool   *pgxpool.Pool
	tables []cleanTable
}

// NewCleaner creates Cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	res := &Cleaner{pool: pool, tables: []cleanTable{
		{name: "drafts", column: "project_id"}, {name: "extracted_stories", column: "project_id"},
		{name: "transcripts", column: "project_id"}, {name: "jobs", column: "project_id"},
		{name: "cycles", column: "project_id"}, {name: "audio_assets", column: "project_id"},
		{name: "email_lock", column: "id"}, {name: "projects", column: "id"},
	}}
	return res, nil
}

// Clean deletes project rows of all tables in one transaction
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		for _, t := range db.tables {
			cmd, err := tx.Exec(ctx, `DELETE FROM `+t.name+` WHERE `+t.column+` = $1`, id)
			if err != nil {
				return fmt.Errorf("can't delete %s(%s): %w", id, t.name, err)
			}
			goapp.Log.Info().Str("ID", id).Str("table", t.name).Int64("rows", cmd.RowsAffected()).Msg("deleted")
		}
		return nil
	})
}
