package statusservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/airenas/memoir/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// HandlerData keeps data required for handler
type HandlerData struct {
	GueClient   *gue.Client
	WorkerCount int
	DB          DB
	WSHandler   WSConnHandler
}

// StartStatusHandler consumes status change events and pushes projections to the subscribers,
// the returned channel closes when the pool stops
func StartStatusHandler(ctx context.Context, data *HandlerData) (chan struct{}, error) {
	if err := validateHandler(data); err != nil {
		return nil, err
	}
	opts := handler.DefaultOpts[amessages.QueueMessage]().WithAttempts(2).WithTimeout(10 * time.Second)
	pool, err := gue.NewWorkerPool(
		data.GueClient, gue.WorkMap{messages.StatusChange: handler.Create(data, handleStatus, opts)}, data.WorkerCount,
		gue.WithPoolQueue(messages.StatusChange),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter(messages.StatusChange)),
		gue.WithPoolPollInterval(200*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("memoir-status"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{})
	go func() {
		defer close(res)
		goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting status workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Status workers finished")
	}()
	return res, nil
}

func handleStatus(ctx context.Context, m *amessages.QueueMessage, data *HandlerData) error {
	if !data.WSHandler.Subscribed(m.ID) {
		goapp.Log.Debug().Str("ID", m.ID).Msg("no subscribers")
		return nil
	}
	res, err := loadProjection(ctx, data.DB, m.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return utils.NewErrNonRetryable(fmt.Errorf("no project %s", m.ID))
		}
		return fmt.Errorf("can't load status of %s: %w", m.ID, err)
	}
	n := data.WSHandler.Push(m.ID, res)
	goapp.Log.Info().Str("ID", m.ID).Str("status", res.Status.String()).Int("progress", res.Progress).
		Int("sent", n).Msg("status pushed")
	return nil
}

func validateHandler(data *HandlerData) error {
	switch {
	case data.GueClient == nil:
		return fmt.Errorf("no gue client")
	case data.WorkerCount < 1:
		return fmt.Errorf("no worker count provided")
	case data.DB == nil:
		return fmt.Errorf("no DB")
	case data.WSHandler == nil:
		return fmt.Errorf("no WSHandler")
	}
	return nil
}
