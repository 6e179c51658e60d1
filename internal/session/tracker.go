// Package session tracks the validity of the platform login session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/atomicfile"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

const DefaultValidity = 12 * time.Hour

// LoginFunc performs a fresh login through the automation collaborator.
type LoginFunc func(ctx context.Context) error

type Tracker struct {
	path     string
	validity time.Duration
	now      func() time.Time

	mu sync.Mutex
}

func NewTracker(path string, validity time.Duration) *Tracker {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Tracker{path: path, validity: validity, now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// State returns the persisted session state. A missing or unreadable file is
// reported as an error; callers treat that as expired.
func (t *Tracker) State() (domain.SessionState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

func (t *Tracker) load() (domain.SessionState, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return domain.SessionState{}, err
	}
	var st domain.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.SessionState{}, fmt.Errorf("corrupt session file: %w", err)
	}
	if st.ValidUntil.IsZero() {
		return domain.SessionState{}, fmt.Errorf("corrupt session file: missing valid_until")
	}
	return st, nil
}

func (t *Tracker) IsValid() bool {
	st, err := t.State()
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", t.path).Msg("session state unreadable, treating as expired")
		}
		return false
	}
	return !t.now().After(st.ValidUntil)
}

// Refresh logs in again and persists a new session state on success.
func (t *Tracker) Refresh(ctx context.Context, login LoginFunc) (domain.SessionState, error) {
	if err := login(ctx); err != nil {
		return domain.SessionState{}, &domain.SessionError{Err: err}
	}

	now := t.now()
	st := domain.SessionState{CreatedAt: now.UTC(), ValidUntil: now.Add(t.validity).UTC()}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := atomicfile.WriteJSON(t.path, st, 0o600); err != nil {
		return domain.SessionState{}, &domain.SessionError{Err: fmt.Errorf("persist session: %w", err)}
	}
	log.Info().Time("valid_until", st.ValidUntil).Msg("session refreshed")
	return st, nil
}
