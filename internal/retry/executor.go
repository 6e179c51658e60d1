// Package retry runs a single fallible unit of work with a bounded number of
// attempts and a fixed delay between them.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// Work is one attempt of an idempotent operation. The returned string is the
// result payload, if any.
type Work func(ctx context.Context) (string, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Executor struct {
	MaxAttempts int
	Delay       time.Duration
	sleep       Sleeper
}

func NewExecutor(maxAttempts int, delay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Executor{MaxAttempts: maxAttempts, Delay: delay, sleep: timerSleep}
}

// WithSleeper replaces the wait between attempts.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	e.sleep = s
	return e
}

// Execute attempts work until it succeeds or MaxAttempts is reached. It never
// returns an error itself; failures are reported in the outcome.
func (e *Executor) Execute(ctx context.Context, taskName string, work Work) domain.TaskOutcome {
	out := domain.TaskOutcome{TaskName: taskName}
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		out.AttemptCount = attempt
		res, err := work(ctx)
		if err == nil {
			out.Succeeded = true
			out.LastError = nil
			if res != "" {
				out.Result = &res
			}
			return out
		}

		out.Errors = append(out.Errors, err)
		out.LastError = err
		log.Warn().Err(err).Str("task", taskName).Int("attempt", attempt).Int("max_attempts", e.MaxAttempts).Msg("attempt failed")

		if attempt == e.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, e.Delay); err != nil {
			out.Errors = append(out.Errors, err)
			out.LastError = err
			break
		}
	}
	return out
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
