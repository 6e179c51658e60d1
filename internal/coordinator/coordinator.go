// Package coordinator runs one task cycle end to end: session check, contact
// resolution, filtering, classification, retried actions, history and the
// closing summary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/automation"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/classifier"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/filter"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/history"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/notify"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/reply"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/retry"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/session"
)

const (
	TaskWishBirthdays = "wish-birthdays"
	TaskReplyToWishes = "reply-to-wishes"
	TaskFollowerCheck = "follower-check"

	DefaultMaxRepliesPerRun = 15
)

type Deps struct {
	Agent      automation.Agent
	History    history.Store
	Session    *session.Tracker
	Retry      *retry.Executor
	Classifier *classifier.Classifier
	Replies    reply.Writer
	Notifier   notify.Notifier

	Location         *time.Location
	MaxRepliesPerRun int
	FollowerProfile  string
}

type task struct {
	name         string
	needsSession bool
	run          func(ctx context.Context, r *runState) error
}

type Coordinator struct {
	d     Deps
	tasks map[string]task
	now   func() time.Time
	sem   chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	settings  Settings
	cancelRun context.CancelFunc
}

func New(d Deps, s Settings) *Coordinator {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.MaxRepliesPerRun <= 0 {
		d.MaxRepliesPerRun = DefaultMaxRepliesPerRun
	}
	if d.Retry == nil {
		d.Retry = retry.NewExecutor(retry.DefaultMaxAttempts, retry.DefaultDelay)
	}
	if d.Classifier == nil {
		d.Classifier = classifier.Default()
	}
	if d.Replies == nil {
		d.Replies = reply.DefaultTemplates()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Multi(nil)
	}
	c := &Coordinator{
		d:        d,
		now:      time.Now,
		sem:      make(chan struct{}, 1),
		settings: s.clone(),
	}
	c.tasks = map[string]task{
		TaskWishBirthdays: {name: TaskWishBirthdays, needsSession: true, run: c.wishBirthdays},
		TaskReplyToWishes: {name: TaskReplyToWishes, needsSession: true, run: c.replyToWishes},
		TaskFollowerCheck: {name: TaskFollowerCheck, run: c.followerCheck},
	}
	return c
}

// Tasks lists the registered task names.
func (c *Coordinator) Tasks() []string {
	names := make([]string, 0, len(c.tasks))
	for n := range c.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply replaces the runtime settings. Runs already in progress keep the
// snapshot they started with.
func (c *Coordinator) Apply(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s.clone()
}

func (c *Coordinator) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.clone()
}

// Run waits for the run slot and executes the named task synchronously.
func (c *Coordinator) Run(ctx context.Context, name string) (domain.Run, error) {
	t, ok := c.tasks[name]
	if !ok {
		return domain.Run{}, fmt.Errorf("%w: %s", domain.ErrUnknownTask, name)
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.Run{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	r, err := c.start(ctx, t)
	if err != nil {
		return domain.Run{}, err
	}
	return c.execute(ctx, r)
}

// Trigger starts the named task in the background and returns its run id.
// It fails with domain.ErrRunInProgress instead of waiting for the slot.
func (c *Coordinator) Trigger(ctx context.Context, name string) (string, error) {
	t, ok := c.tasks[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTask, name)
	}
	select {
	case c.sem <- struct{}{}:
	default:
		return "", domain.ErrRunInProgress
	}

	bg := context.WithoutCancel(ctx)
	r, err := c.start(bg, t)
	if err != nil {
		<-c.sem
		return "", err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.sem }()
		_, _ = c.execute(bg, r)
	}()
	return r.run.ID, nil
}

// Cancel asks the active run to stop before its next contact. It reports
// whether a run was active.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelRun == nil {
		return false
	}
	c.cancelRun()
	return true
}

// Wait blocks until background runs started by Trigger have finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

type runState struct {
	ctx      context.Context
	cancel   context.CancelFunc
	task     task
	run      domain.Run
	settings Settings
	filter   *filter.Filter
	log      zerolog.Logger
	sent     []string
}

// abortError marks a failure that ends the run before or between contacts.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func (c *Coordinator) start(ctx context.Context, t task) (*runState, error) {
	s := c.Settings()
	r := &runState{
		task:     t,
		settings: s,
		filter: filter.New(filter.Rules{
			Whitelist:    s.Whitelist,
			Blacklist:    s.Blacklist,
			CooldownDays: s.CooldownDays,
			Location:     c.d.Location,
			DryRun:       s.DryRun,
		}),
		run: domain.Run{
			TaskName:  t.name,
			State:     domain.RunRunning,
			DryRun:    s.DryRun,
			StartedAt: c.now(),
		},
	}
	id, err := c.d.History.StartRun(ctx, r.run)
	if err != nil {
		return nil, err
	}
	r.run.ID = id
	r.log = log.With().Str("task", t.name).Str("run_id", id).Bool("dry_run", s.DryRun).Logger()

	// Cancel must reach the run as soon as its id is visible to callers.
	r.ctx, r.cancel = context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRun = r.cancel
	c.mu.Unlock()
	return r, nil
}

func (c *Coordinator) execute(ctx context.Context, r *runState) (domain.Run, error) {
	defer func() {
		c.mu.Lock()
		c.cancelRun = nil
		c.mu.Unlock()
		r.cancel()
	}()

	r.log.Info().Int("cooldown_days", r.filter.CooldownDays()).Msg("run started")
	err := r.ctx.Err()
	if err == nil {
		err = c.prepare(r.ctx, r)
	}
	if err == nil {
		err = r.task.run(r.ctx, r)
	}
	c.finish(ctx, r, err)
	return r.run, err
}

func (c *Coordinator) prepare(ctx context.Context, r *runState) error {
	if !r.task.needsSession || c.d.Session.IsValid() {
		return nil
	}
	r.log.Info().Msg("session expired, logging in")
	if _, err := c.d.Session.Refresh(ctx, c.d.Agent.Login); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) finish(ctx context.Context, r *runState, err error) {
	var abort *abortError
	switch {
	case err == nil:
		r.run.State = domain.RunSucceeded
	case errors.Is(err, context.Canceled):
		r.run.State = domain.RunCanceled
	case domain.IsFatal(err) || errors.As(err, &abort):
		r.run.State = domain.RunAborted
	default:
		r.run.State = domain.RunFailed
	}
	if err != nil && r.run.State != domain.RunCanceled {
		reason := err.Error()
		r.run.AbortReason = &reason
	}
	now := c.now()
	r.run.FinishedAt = &now

	// The run context may be gone; bookkeeping must still land.
	bg := context.WithoutCancel(ctx)
	if ferr := c.d.History.FinishRun(bg, r.run); ferr != nil {
		r.log.Error().Err(ferr).Msg("record run result")
	}

	ev := r.log.Info()
	if err != nil {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("state", string(r.run.State)).
		Int("sent", r.run.Sent).
		Int("skipped", r.run.Skipped).
		Int("failed", r.run.Failed).
		Msg("run finished")

	summary := notify.Summary{
		RunID:    r.run.ID,
		TaskName: r.run.TaskName,
		State:    r.run.State,
		DryRun:   r.run.DryRun,
		Sent:     r.sent,
		Skipped:  r.run.Skipped,
		Failed:   r.run.Failed,
	}
	if r.run.AbortReason != nil {
		summary.AbortReason = *r.run.AbortReason
	}
	if r.run.State == domain.RunCanceled {
		summary.AbortReason = "canceled"
	}
	if r.run.Result != nil {
		summary.Result = *r.run.Result
	}
	if nerr := c.d.Notifier.SendSummary(bg, summary); nerr != nil {
		r.log.Error().Err(nerr).Msg("send summary")
	}
}
