package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
	gc   *gue.Client
	now  func() time.Time
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	res := &DB{pool: pool, gc: gc, now: func() time.Time { return time.Now().UTC() }}
	return res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) inTx(ctx context.Context, f func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.pool, f)
}

// enqueue puts the job message into the gue queue in the same transaction
func (db *DB) enqueue(ctx context.Context, tx pgx.Tx, queue string, priority int16, msg interface{}) error {
	args, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal msg: %w", err)
	}
	j := &gue.Job{Type: queue, Queue: queue, Args: args}
	setPriority(&j.Priority, priority)
	if err := db.gc.EnqueueTx(ctx, j, pgxv5.NewTx(tx)); err != nil {
		return fmt.Errorf("can't enqueue to %s: %w", queue, err)
	}
	return nil
}

func setPriority[T ~int16](p *T, v int16) {
	*p = T(v)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return err
}

func toJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.(json.RawMessage); ok {
		return b, nil
	}
	return json.Marshal(v)
}

func nullStr(s string) sql.NullString {
	return utils.ToSQLStr(s)
}
