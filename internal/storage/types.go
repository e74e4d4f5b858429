package storage

import (
	"context"
	"errors"
	"time"

	"noticer/internal/task"
)

var (
	// ErrNotFound means no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrUnavailable wraps connectivity and query failures. Callers retry on
	// the next cycle.
	ErrUnavailable = errors.New("task store unavailable")
)

// Store is the persistence API used by the scheduler and dispatch loop.
type Store interface {
	// List returns every task in ascending id order.
	List(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, id int64) (task.Task, error)
	// Save persists the run state of an existing task.
	Save(ctx context.Context, t task.Task) error
	// Create inserts a new task and returns its assigned id.
	Create(ctx context.Context, t task.Task) (int64, error)
	Close() error
}

type Config struct {
	Driver string
	// Path is the database file (sqlite) or file prefix (file).
	Path        string
	BusyTimeout time.Duration

	// Redis.
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// row is the persisted shape shared by all drivers. Optional filters are
// nil when the column is NULL.
type row struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	ExpectTimes    *int       `json:"expect_times,omitempty"`
	Month          *uint32    `json:"month,omitempty"`
	Day            *uint32    `json:"day,omitempty"`
	Weekday        *uint32    `json:"weekday,omitempty"`
	Timepoint      *int       `json:"timepoint,omitempty"`
	TimeGap        *int       `json:"time_gap,omitempty"`
	DurationStart  *int       `json:"duration_start,omitempty"`
	DurationEnd    *int       `json:"duration_end,omitempty"`
	ExecuteTimes   int        `json:"execute_times"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

func toRow(t task.Task) row {
	r := row{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		ExpectTimes:  copyPtr(t.ExpectTimes),
		Month:        setBits(t.Month),
		Day:          setBits(t.Day),
		Weekday:      setBits(t.Weekday),
		Timepoint:    copyPtr(t.Timepoint),
		TimeGap:      copyPtr(t.TimeGap),
		ExecuteTimes: t.ExecuteTimes,
	}
	if t.Window != nil {
		start, end := t.Window.Start, t.Window.End
		r.DurationStart = &start
		r.DurationEnd = &end
	}
	if !t.LastExecutedAt.IsZero() {
		at := t.LastExecutedAt.UTC()
		r.LastExecutedAt = &at
	}
	return r
}

func (r row) task() task.Task {
	t := task.Task{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		ExpectTimes:  copyPtr(r.ExpectTimes),
		Month:        bitsSet(r.Month),
		Day:          bitsSet(r.Day),
		Weekday:      bitsSet(r.Weekday),
		Timepoint:    copyPtr(r.Timepoint),
		TimeGap:      copyPtr(r.TimeGap),
		ExecuteTimes: r.ExecuteTimes,
	}
	// A window needs both bounds; a half-configured window is ignored.
	if r.DurationStart != nil && r.DurationEnd != nil {
		t.Window = &task.Window{Start: *r.DurationStart, End: *r.DurationEnd}
	}
	if r.LastExecutedAt != nil {
		t.LastExecutedAt = *r.LastExecutedAt
	}
	return t
}

func setBits(s *task.Set) *uint32 {
	if s == nil {
		return nil
	}
	v := uint32(*s)
	return &v
}

func bitsSet(v *uint32) *task.Set {
	if v == nil {
		return nil
	}
	s := task.Set(*v)
	return &s
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
