package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/history"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/logging"
)

// Control is the operator surface over a Coordinator. Settings changes are
// persisted before they are applied.
type Control struct {
	coord        *Coordinator
	history      history.Store
	settingsPath string
	logFile      string

	mu         sync.Mutex
	onSchedule []func()
}

func NewControl(coord *Coordinator, h history.Store, settingsPath, logFile string) *Control {
	return &Control{coord: coord, history: h, settingsPath: settingsPath, logFile: logFile}
}

// OnScheduleChange registers fn to be called after the schedule changes.
func (c *Control) OnScheduleChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSchedule = append(c.onSchedule, fn)
}

func (c *Control) Tasks() []string { return c.coord.Tasks() }

func (c *Control) Trigger(ctx context.Context, name string) (string, error) {
	return c.coord.Trigger(ctx, name)
}

func (c *Control) Cancel() bool { return c.coord.Cancel() }

func (c *Control) Settings() Settings { return c.coord.Settings() }

// Schedule is read by the scheduler once per cycle.
func (c *Control) Schedule() domain.ScheduleConfig { return c.coord.Settings().Schedule }

func (c *Control) SetDryRun(dryRun bool) (Settings, error) {
	return c.update(func(s *Settings) { s.DryRun = dryRun })
}

func (c *Control) SetSchedule(hour, minute int) (Settings, error) {
	s, err := c.update(func(s *Settings) { s.Schedule = domain.ScheduleConfig{Hour: hour, Minute: minute} })
	if err != nil {
		return Settings{}, err
	}
	c.mu.Lock()
	hooks := append([]func(){}, c.onSchedule...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return s, nil
}

// SetLists replaces the whitelist, blacklist and reply cooldown.
func (c *Control) SetLists(whitelist, blacklist []string, cooldownDays int) (Settings, error) {
	return c.update(func(s *Settings) {
		s.Whitelist = append([]string{}, whitelist...)
		s.Blacklist = append([]string{}, blacklist...)
		s.CooldownDays = cooldownDays
	})
}

func (c *Control) update(fn func(s *Settings)) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.coord.Settings()
	fn(&s)
	if err := SaveSettings(c.settingsPath, s); err != nil {
		return Settings{}, err
	}
	c.coord.Apply(s)
	log.Info().
		Bool("dry_run", s.DryRun).
		Int("hour", s.Schedule.Hour).
		Int("minute", s.Schedule.Minute).
		Int("whitelist", len(s.Whitelist)).
		Int("blacklist", len(s.Blacklist)).
		Int("cooldown_days", s.CooldownDays).
		Msg("settings updated")
	return s, nil
}

func (c *Control) RecentHistory(ctx context.Context, n int) ([]domain.ActionRecord, error) {
	return c.history.Query(ctx, history.Filter{Limit: n})
}

func (c *Control) RecentRuns(ctx context.Context, n int) ([]domain.Run, error) {
	return c.history.RecentRuns(ctx, n)
}

// SessionStatus describes the persisted login session. The times are nil when
// no session has been stored yet.
type SessionStatus struct {
	Valid      bool
	CreatedAt  *time.Time
	ValidUntil *time.Time
}

func (c *Control) Session() SessionStatus {
	st, err := c.coord.d.Session.State()
	if err != nil {
		return SessionStatus{}
	}
	return SessionStatus{
		Valid:      c.coord.d.Session.IsValid(),
		CreatedAt:  &st.CreatedAt,
		ValidUntil: &st.ValidUntil,
	}
}

func (c *Control) LogLines(n int) ([]string, error) {
	return logging.Tail(c.logFile, n)
}
