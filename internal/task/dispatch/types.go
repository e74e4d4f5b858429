package dispatch

import (
	"context"
	"errors"
	"time"

	"noticer/internal/task"
)

// ErrPersistenceAfterSend means the message went out but the run state could
// not be saved; the task may be sent again when next due.
var ErrPersistenceAfterSend = errors.New("run state not persisted after send")

// Store is the per-task side of the task store.
type Store interface {
	Get(ctx context.Context, id int64) (task.Task, error)
	Save(ctx context.Context, t task.Task) error
}

// Executor performs the side effect for one task; *executor.Manager
// implements it. A nil error means the message was delivered.
type Executor interface {
	Execute(ctx context.Context, t task.Task) error
}

type Config struct {
	Workers     int
	SendTimeout time.Duration
	HistorySize int
}

type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeFailed        Outcome = "failed"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeNotDue        Outcome = "not_due"
	OutcomeStoreError    Outcome = "store_error"
	OutcomePersistFailed Outcome = "persist_failed"
)

// Result describes one dispatch. It is kept in history and published as the
// Data of dispatch.* events.
type Result struct {
	RunID    string        `json:"run_id"`
	TaskID   int64         `json:"task_id"`
	Name     string        `json:"name,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	Workers  int
	InFlight int
	Counts   map[Outcome]uint64
	History  []Result
}

type Option func(*Service)

// WithClock replaces time.Now for due checks and run timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation supplies the zone used for the due re-check.
func WithLocation(loc func() *time.Location) Option { return func(s *Service) { s.loc = loc } }
