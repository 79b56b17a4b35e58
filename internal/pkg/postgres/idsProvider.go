package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

const purgeBatch = 500

// DBIdsProvider lists soft deleted projects that are ready to be purged
type DBIdsProvider struct {
	pool         *pgxpool.Pool
	expiresAfter time.Duration
	batch        int
	now          func() time.Time
}

// NewDBIdsProvider creates DBIdsProvider instance
func NewDBIdsProvider(pool *pgxpool.Pool, expiresAfter time.Duration) (*DBIdsProvider, error) {
	if expiresAfter <= 0 {
		return nil, fmt.Errorf("wrong expire duration %v", expiresAfter)
	}
	return &DBIdsProvider{pool: pool, expiresAfter: expiresAfter, batch: purgeBatch,
		now: func() time.Time { return time.Now().UTC() }}, nil
}

// GetExpired returns the oldest projects deleted longer than the expire duration ago, at most one batch
func (db *DBIdsProvider) GetExpired(ctx context.Context) ([]string, error) {
	before := db.now().Add(-db.expiresAfter)
	rows, err := db.pool.Query(ctx, `SELECT id FROM projects WHERE deleted AND updated < $1
		ORDER BY updated LIMIT $2`, before, db.batch)
	if err != nil {
		return nil, fmt.Errorf("can't select deleted projects: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("can't scan project id: %w", err)
		}
		res = append(res, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read deleted projects: %w", err)
	}
	goapp.Log.Info().Time("before", before).Int("found", len(res)).Msg("expired projects")
	return res, nil
}
