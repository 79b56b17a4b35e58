package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/vgarvardt/gue/v5"
)

// terminalRetries bounds the attempts to record a terminal failure
const terminalRetries = 5

// Opts configures a queue handler
type Opts[TM any] struct {
	backoff  gue.Backoff
	timeout  time.Duration
	attempts int
	terminal func(context.Context, *TM, error) error
}

// Create helper func to wrap gue worker main func
// The handler is retried with backoff until attempts are exhausted or it returns
// utils.ErrNonRetryable, then the terminal func is invoked once
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("could not unmarshal message, drop")
			return nil
		}
		if int(j.ErrorCount) >= opts.attempts {
			return opts.giveUp(ctx, &m, errors.New(j.LastError.String), j)
		}
		wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
		err := hf(wrkCtx, &m, data)
		cf()
		if err == nil {
			return nil
		}
		attempt := int(j.ErrorCount) + 1
		goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Int("attempt", attempt).Msg("fail")
		if utils.IsNonRetryable(err) || attempt >= opts.attempts {
			return opts.giveUp(ctx, &m, err, j)
		}
		delay := opts.backoff(attempt)
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

func (o *Opts[TM]) giveUp(ctx context.Context, m *TM, err error, j *gue.Job) error {
	goapp.Log.Warn().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("giving up")
	if o.terminal == nil {
		return nil
	}
	errT := o.terminal(ctx, m, err)
	if errT == nil {
		return nil
	}
	goapp.Log.Error().Err(errT).Str("queue", j.Queue).Str("type", j.Type).Msg("terminal handler failed")
	if int(j.ErrorCount) >= o.attempts+terminalRetries {
		return nil
	}
	// the original failure stays as the reason, the next run goes straight to the terminal handler
	if int(j.ErrorCount)+1 < o.attempts {
		j.ErrorCount = int32(o.attempts - 1)
	}
	return gue.ErrRescheduleJobIn(o.backoff(1), err.Error())
}

// DefaultOpts returns 3 attempts, exponential 5s backoff, 15 min timeout
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, attempts: 3, backoff: ExponentialBackoff(5 * time.Second)}
}

// ExponentialBackoff doubles base on each retry
func ExponentialBackoff(base time.Duration) gue.Backoff {
	return func(retries int) time.Duration {
		if retries < 1 {
			retries = 1
		}
		if retries > 16 {
			retries = 16
		}
		return fullJitter(base * time.Duration(1<<(retries-1)))
	}
}

// FixedBackoff waits the same on each retry
func FixedBackoff(d time.Duration) gue.Backoff {
	return func(retries int) time.Duration {
		return d
	}
}

// NoBackoff retries immediately
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// BackoffOrTest returns NoBackoff in test mode
func BackoffOrTest(test bool, b gue.Backoff) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return b
}

// WithTerminal sets func invoked once when the job is given up
func (o *Opts[TM]) WithTerminal(f func(context.Context, *TM, error) error) *Opts[TM] {
	o.terminal = f
	return o
}

// WithTimeout sets a wall clock limit for one attempt
func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	if timeout > 0 {
		o.timeout = timeout
	}
	return o
}

// WithBackoff sets retry delay func
func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// WithAttempts sets attempts ceiling
func (o *Opts[TM]) WithAttempts(n int) *Opts[TM] {
	if n < 1 {
		n = 1
	}
	o.attempts = n
	return o
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	// `rand` here is used just for backoff jitter,
	return time.Duration(float64(t) * rand.Float64())
}
