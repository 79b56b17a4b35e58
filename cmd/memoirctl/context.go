package main

import (
	"context"
	"fmt"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/postgres"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

// store is the part of the job store the commands read
type store interface {
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	LoadCycle(ctx context.Context, id string) (*persistence.Cycle, error)
	LoadJobs(ctx context.Context, projectID string) ([]*persistence.Job, error)
	CountIncomplete(ctx context.Context, projectID string, t status.JobType) (int, error)
	LoadDrafts(ctx context.Context, projectID string) ([]*persistence.Draft, error)
	LoadActiveDraft(ctx context.Context, projectID string) (*persistence.Draft, error)
	Enqueue(ctx context.Context, req *persistence.EnqueueRequest) (*persistence.Job, error)
}

type openFunc func(ctx context.Context, url string, migrate bool) (store, func(), error)

type commandContext struct {
	cfg  *viper.Viper
	open openFunc
}

func newCommandContext(open openFunc) *commandContext {
	cfg := viper.New()
	cfg.SetEnvPrefix("memoir")
	cfg.AutomaticEnv()
	return &commandContext{cfg: cfg, open: open}
}

func (c *commandContext) withStore(ctx context.Context, f func(store) error) error {
	return c.run(ctx, false, f)
}

func (c *commandContext) run(ctx context.Context, migrate bool, f func(store) error) error {
	url := c.cfg.GetString("db")
	if url == "" {
		return fmt.Errorf("no db url, use --db or MEMOIR_DB")
	}
	st, closeF, err := c.open(ctx, url, migrate)
	if err != nil {
		return err
	}
	defer closeF()
	return f(st)
}

func openDB(ctx context.Context, url string, migrate bool) (store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("can't init db pool: %w", err)
	}
	if migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	db, err := postgres.NewDB(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return db, pool.Close, nil
}
