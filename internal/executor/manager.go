package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

// Sender delivers rendered text; *notifier.Service implements it.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Builder renders the message for one task.
type Builder interface {
	Build(t task.Task, now time.Time) (string, error)
}

// Delivered is implemented by builders that track successful sends.
type Delivered interface {
	Delivered(t task.Task, now time.Time)
}

// Resetter is implemented by builders with state that is cleared on a cron
// schedule (standard 5-field spec).
type Resetter interface {
	ResetSpec() string
	Reset()
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(t task.Task, now time.Time) (string, error)

func (f BuilderFunc) Build(t task.Task, now time.Time) (string, error) { return f(t, now) }

// DefaultBuilder sends "name" or "name\ndescription".
var DefaultBuilder Builder = BuilderFunc(func(t task.Task, _ time.Time) (string, error) {
	name := strings.TrimSpace(t.Name)
	desc := strings.TrimSpace(t.Description)
	switch {
	case name == "" && desc == "":
		return "", fmt.Errorf("task %d has no name or description", t.ID)
	case desc == "":
		return name, nil
	case name == "":
		return desc, nil
	default:
		return name + "\n" + desc, nil
	}
})

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLocation sets the timezone for reset jobs.
func WithLocation(loc *time.Location) Option { return func(m *Manager) { m.loc = loc } }

type Manager struct {
	sender Sender
	log    logx.Logger
	now    func() time.Time
	loc    *time.Location

	mu       sync.RWMutex
	builders map[int64]Builder
	fallback Builder

	cmu sync.Mutex
	c   *cron.Cron
}

func NewManager(sender Sender, log logx.Logger, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		sender:   sender,
		log:      log,
		now:      time.Now,
		loc:      time.Local,
		builders: map[int64]Builder{},
		fallback: DefaultBuilder,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register binds b to a task id, replacing any previous builder. Reset jobs
// are registered when the manager starts.
func (m *Manager) Register(id int64, b Builder) error {
	if b == nil {
		return errors.New("nil builder")
	}
	if r, ok := b.(Resetter); ok {
		if _, err := cron.ParseStandard(r.ResetSpec()); err != nil {
			return fmt.Errorf("task %d reset spec %q: %w", id, r.ResetSpec(), err)
		}
	}
	m.mu.Lock()
	m.builders[id] = b
	m.mu.Unlock()
	return nil
}

// SetDefault replaces the fallback builder.
func (m *Manager) SetDefault(b Builder) {
	if b == nil {
		b = DefaultBuilder
	}
	m.mu.Lock()
	m.fallback = b
	m.mu.Unlock()
}

func (m *Manager) builderFor(id int64) Builder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.builders[id]; ok {
		return b
	}
	return m.fallback
}

// Execute renders t and delivers it. A nil error means the message was sent.
func (m *Manager) Execute(ctx context.Context, t task.Task) error {
	b := m.builderFor(t.ID)
	now := m.now()
	text, err := b.Build(t, now)
	if err != nil {
		return fmt.Errorf("build content: %w", err)
	}
	if err := m.sender.Send(ctx, text); err != nil {
		return err
	}
	if d, ok := b.(Delivered); ok {
		d.Delivered(t, now)
	}
	return nil
}

// Start schedules reset jobs for registered builders. It is idempotent.
func (m *Manager) Start(ctx context.Context) error {
	m.cmu.Lock()
	defer m.cmu.Unlock()
	if m.c != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(m.loc))

	m.mu.RLock()
	for id, b := range m.builders {
		r, ok := b.(Resetter)
		if !ok {
			continue
		}
		id, r := id, r
		if _, err := c.AddFunc(r.ResetSpec(), func() {
			r.Reset()
			m.log.Info("executor state reset", logx.TaskID(id), logx.String("spec", r.ResetSpec()))
		}); err != nil {
			m.mu.RUnlock()
			return fmt.Errorf("task %d reset job: %w", id, err)
		}
		m.log.Debug("reset job registered", logx.TaskID(id), logx.String("spec", r.ResetSpec()), logx.String("tz", m.loc.String()))
	}
	m.mu.RUnlock()

	c.Start()
	m.c = c
	return nil
}

func (m *Manager) Stop(ctx context.Context) {
	m.cmu.Lock()
	c := m.c
	m.c = nil
	m.cmu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
