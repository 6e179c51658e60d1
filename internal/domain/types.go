package domain

import "time"

type ActionKind string

const (
	ActionWishSent  ActionKind = "wish_sent"
	ActionReplySent ActionKind = "reply_sent"
	ActionSkipped   ActionKind = "skipped"
	ActionFailed    ActionKind = "failed"
)

type SkipReason string

const (
	ReasonBlacklisted        SkipReason = "blacklisted"
	ReasonNotWhitelisted     SkipReason = "not-whitelisted"
	ReasonCooldownActive     SkipReason = "cooldown-active"
	ReasonAlreadyWishedToday SkipReason = "already-wished-today"
	ReasonNotAWish           SkipReason = "not-a-birthday-wish"
	ReasonReplyLimit         SkipReason = "reply-limit-reached"
	ReasonNotBirthdayToday   SkipReason = "not-birthday-today"
)

// Contact is a person on the platform, identified by name or profile handle.
type Contact struct {
	ID              string
	Name            string
	ProfileURL      string
	BirthdayToday   bool
	MessageLanguage string
}

// Message is an unread thread as reported by the automation collaborator.
type Message struct {
	Contact  Contact
	ThreadID string
	Text     string
}

type ActionRecord struct {
	ID        string
	RunID     string
	Contact   string
	Kind      ActionKind
	Reason    *string
	TaskName  string
	Language  string
	DryRun    bool
	CreatedAt time.Time
}

type SessionState struct {
	CreatedAt  time.Time `json:"created_at"`
	ValidUntil time.Time `json:"valid_until"`
}

type TaskOutcome struct {
	TaskName     string
	AttemptCount int
	Succeeded    bool
	LastError    error
	Errors       []error
	Result       *string
}

type ScheduleConfig struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunAborted   RunState = "aborted"
	RunCanceled  RunState = "canceled"
)

type Run struct {
	ID          string
	TaskName    string
	State       RunState
	DryRun      bool
	Sent        int
	Skipped     int
	Failed      int
	AbortReason *string
	Result      *string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Attempt is one failed try of a retried unit of work.
type Attempt struct {
	RunID     string
	TaskName  string
	Contact   string
	Attempt   int
	Error     string
	CreatedAt time.Time
}
