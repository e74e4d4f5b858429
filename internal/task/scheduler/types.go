package scheduler

import (
	"context"
	"sync"
	"time"

	"noticer/internal/eventbus"
	rtsup "noticer/internal/runtime/supervisor"
	"noticer/internal/task"
	"noticer/internal/task/queue"
	logx "noticer/pkg/logx"
)

const DefaultPollInterval = 10 * time.Second

// Lister is the read side of the task store.
type Lister interface {
	List(ctx context.Context) ([]task.Task, error)
}

type Config struct {
	Enabled      bool
	PollInterval time.Duration
	// Timezone is an IANA name; empty means the process local zone.
	Timezone string
	// CycleTimeout bounds one store listing. Zero means PollInterval, with a
	// floor of 5s.
	CycleTimeout time.Duration
}

// CycleEvent is the Data of scheduler.cycle and scheduler.store_failed.
type CycleEvent struct {
	At    time.Time     `json:"at"`
	Tasks int           `json:"tasks"`
	Due   []int64       `json:"due,omitempty"`
	Took  time.Duration `json:"took"`
	Error string        `json:"error,omitempty"`
}

// Stats summarizes the loop for status output.
type Stats struct {
	Running     bool      `json:"running"`
	Cycles      uint64    `json:"cycles"`
	Failures    uint64    `json:"failures"`
	Emitted     uint64    `json:"emitted"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastDue     []int64   `json:"last_due,omitempty"`
	LastErr     string    `json:"last_err,omitempty"`
	Timezone    string    `json:"timezone"`
}

type Option func(*Service)

// WithClock replaces time.Now for cycle evaluation.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithQueue publishes into q instead of a fresh queue.
func WithQueue(q *queue.Queue) Option { return func(s *Service) { s.q = q } }

type Service struct {
	mu  sync.Mutex
	cfg Config
	loc *time.Location

	store Lister
	q     *queue.Queue
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	sup    *rtsup.Supervisor
	stop   chan struct{}
	wake   chan struct{}
	exited chan struct{}

	statsMu sync.Mutex
	stats   Stats

	warnMu   sync.Mutex
	lastWarn time.Time
}
