package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// gue takes lower values first
var notifyPriority = map[string]int16{messages.StatusChange: -10, messages.Inform: 10}

// Sender puts notification messages into gue queues
// Stage jobs are enqueued by DB together with the job rows
type Sender struct {
	gc *gue.Client
}

// NewSender initializes gue sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc}, nil
}

// SendMessage enqueues the message to the queue
func (sender *Sender) SendMessage(ctx context.Context, msg amessages.Message, queue string) error {
	j, err := notifyJob(msg, queue)
	if err != nil {
		return err
	}
	goapp.Log.Debug().Str("queue", queue).Int16("priority", int16(j.Priority)).Msg("sending")
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	return nil
}

func notifyJob(msg amessages.Message, queue string) (*gue.Job, error) {
	args, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("can't marshal msg: %w", err)
	}
	res := &gue.Job{Type: queue, Queue: queue, Args: args}
	setPriority(&res.Priority, notifyPriority[queue])
	return res, nil
}
