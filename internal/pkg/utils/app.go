package utils

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

// ShutdownTimeout is how long the services wait for workers to drain
const ShutdownTimeout = 15 * time.Second

// NewDBPool creates the pool from db.url
// db.trace logs connection events
func NewDBPool(ctx context.Context, cfg *viper.Viper) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		return nil, fmt.Errorf("can't parse db config: %w", err)
	}
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
	if cfg.GetBool("db.trace") {
		traceConnections(dbConfig)
	}
	res, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("can't init db pool: %w", err)
	}
	return res, nil
}

func traceConnections(dbConfig *pgxpool.Config) {
	dbConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		goapp.Log.Debug().Str("host", cc.Host).Msg("before connect")
		return nil
	}
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		goapp.Log.Debug().Uint32("pid", c.PgConn().PID()).Msg("after connect")
		return nil
	}
}

// WaitForStop blocks until a termination signal or doneCh closes
func WaitForStop(doneCh <-chan struct{}) {
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(waitCh)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
}

// Drain cancels background work and waits for it to finish
func Drain(cancel func(), doneCh <-chan struct{}, timeout time.Duration) bool {
	cancel()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
		return true
	case <-time.After(timeout):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
		return false
	}
}
