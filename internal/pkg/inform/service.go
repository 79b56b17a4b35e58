package inform

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/messages"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/airenas/memoir/internal/pkg/utils/handler"
	"github.com/jordan-wright/email"
	"github.com/pkg/errors"
	"github.com/vgarvardt/gue/v5"
)

// lock values stored on unlock
const (
	lockRetry = 0
	lockSent  = 2
)

// mailed lists the outcomes the owner is told about
var mailed = map[string]bool{amessages.InformTypeFinished: true, amessages.InformTypeFailed: true}

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker prepares the email
type EmailMaker interface {
	Make(data *inform.Data) (*email.Email, error)
}

// DB loads the recipient and guards against sending the same mail twice
type DB interface {
	LockEmailTable(context.Context, string, string) error
	UnLockEmailTable(context.Context, string, string, *int) error
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	EmailSender Sender
	EmailMaker  EmailMaker
	DB          DB
	Location    *time.Location
}

// StartWorkerService listens on the inform queue, the returned channel closes when the pool stops
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	opts := handler.DefaultOpts[amessages.InformMessage]().
		WithAttempts(5).WithTimeout(time.Minute).WithBackoff(handler.ExponentialBackoff(10 * time.Second))
	pool, err := gue.NewWorkerPool(
		data.GueClient, gue.WorkMap{messages.Inform: handler.Create(data, handleInform, opts)}, data.WorkerCount,
		gue.WithPoolQueue(messages.Inform),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter("inform")),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("memoir-inform"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{})
	go func() {
		defer close(res)
		goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting inform workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Inform workers finished")
	}()
	return res, nil
}

func handleInform(ctx context.Context, m *amessages.InformMessage, data *ServiceData) error {
	if !mailed[m.Type] {
		goapp.Log.Debug().Str("ID", m.ID).Str("type", m.Type).Msg("not mailed type, skip")
		return nil
	}
	p, err := recipient(ctx, data.DB, m.ID)
	if err != nil || p == nil {
		return err
	}
	md := &inform.Data{}
	md.ID, md.Email = m.ID, p.OwnerEmail
	md.MsgType, md.MsgTime = m.Type, toLocalTime(m.At, data.Location)
	mail, err := data.EmailMaker.Make(md)
	if err != nil {
		return fmt.Errorf("can't prepare email: %w", err)
	}
	return sendOnce(ctx, data, m.ID, lockKey(m.Type, p.CycleID), func() error { return data.EmailSender.Send(mail) })
}

// recipient returns nil when there is nobody to inform
func recipient(ctx context.Context, db DB, id string) (*persistence.Project, error) {
	p, err := db.LoadProject(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, utils.NewErrNonRetryable(err)
		}
		return nil, fmt.Errorf("can't load project: %w", err)
	}
	if p.Deleted || p.OwnerEmail == "" {
		goapp.Log.Info().Str("ID", id).Bool("deleted", p.Deleted).Msg("no recipient, skip")
		return nil, nil
	}
	return p, nil
}

func sendOnce(ctx context.Context, data *ServiceData, id, key string, send func() error) error {
	if err := data.DB.LockEmailTable(ctx, id, key); err != nil {
		if errors.Is(err, persistence.ErrLocked) {
			goapp.Log.Info().Str("ID", id).Str("key", key).Msg("already sent, skip")
			return nil
		}
		return fmt.Errorf("can't lock mail table: %w", err)
	}
	res := lockRetry
	defer func() {
		if err := data.DB.UnLockEmailTable(ctx, id, key, &res); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't unlock")
		}
	}()
	if err := send(); err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	res = lockSent
	goapp.Log.Info().Str("ID", id).Str("key", key).Msg("mail sent")
	return nil
}

// lockKey makes one email per cycle and type
func lockKey(tp, cycleID string) string {
	if cycleID == "" {
		return tp
	}
	return tp + "/" + cycleID
}

func validate(data *ServiceData) error {
	switch {
	case data.GueClient == nil:
		return fmt.Errorf("no gue client")
	case data.WorkerCount < 1:
		return fmt.Errorf("no worker count provided")
	case data.EmailMaker == nil:
		return fmt.Errorf("no EmailMaker")
	case data.EmailSender == nil:
		return fmt.Errorf("no EmailSender")
	case data.DB == nil:
		return fmt.Errorf("no DB")
	}
	return nil
}

func toLocalTime(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		return t.In(loc)
	}
	return t
}
