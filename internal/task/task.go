package task

import (
	"fmt"
	"time"
)

const (
	// MinutesPerDay bounds timepoints and windows.
	MinutesPerDay = 24 * 60
	// MaxTimeGap is the largest accepted minimum gap, one day.
	MaxTimeGap = MinutesPerDay
)

// Window is an inclusive minute-of-day range.
type Window struct {
	Start int
	End   int
}

// Valid reports whether the window can match anything.
func (w Window) Valid() bool { return w.Start >= 0 && w.Start <= w.End }

func (w Window) contains(minute int) bool { return minute >= w.Start && minute <= w.End }

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", formatMinute(w.Start), formatMinute(w.End))
}

// Task is a recurring notification definition plus its run state.
//
// A nil filter matches anything; a present filter with no members matches
// nothing.
type Task struct {
	ID          int64
	Name        string
	Description string

	ExpectTimes *int
	Month       *Set
	Day         *Set
	Weekday     *Set
	Timepoint   *int // minute of day
	TimeGap     *int // minutes
	Window      *Window

	ExecuteTimes   int
	LastExecutedAt time.Time // zero until the first execution
}

// AllowMonths adds months (1-12) to the month filter, creating it if absent.
func (t *Task) AllowMonths(months ...int) error {
	return allow(&t.Month, monthWidth, "month", months)
}

// AllowDays adds days of month (1-31) to the day filter.
func (t *Task) AllowDays(days ...int) error {
	return allow(&t.Day, dayWidth, "day", days)
}

// AllowWeekdays adds ISO weekdays (1=Monday..7=Sunday) to the weekday filter.
func (t *Task) AllowWeekdays(weekdays ...int) error {
	return allow(&t.Weekday, weekdayWidth, "weekday", weekdays)
}

func allow(dst **Set, width int, name string, values []int) error {
	for _, v := range values {
		if v < 1 || v > width {
			return fmt.Errorf("%w: %s %d out of range 1..%d", ErrFilterInvalid, name, v, width)
		}
	}
	var s Set
	if *dst != nil {
		s = **dst
	}
	for _, v := range values {
		s = s.With(v)
	}
	*dst = &s
	return nil
}

// Months returns the month filter members; ok is false when the filter is absent.
func (t *Task) Months() (values []int, ok bool) { return listOf(t.Month, monthWidth) }

func (t *Task) Days() (values []int, ok bool) { return listOf(t.Day, dayWidth) }

func (t *Task) Weekdays() (values []int, ok bool) { return listOf(t.Weekday, weekdayWidth) }

func listOf(s *Set, width int) ([]int, bool) {
	if s == nil {
		return nil, false
	}
	return s.Values(width), true
}

// SetTimepoint restricts the task to exactly hour:minute.
func (t *Task) SetTimepoint(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: timepoint %02d:%02d", ErrFilterInvalid, hour, minute)
	}
	m := hour*60 + minute
	t.Timepoint = &m
	return nil
}

// SetWindow restricts the task to the inclusive minute-of-day range [start, end].
func (t *Task) SetWindow(start, end int) error {
	if start < 0 || end >= MinutesPerDay || start > end {
		return fmt.Errorf("%w: window %d-%d", ErrFilterInvalid, start, end)
	}
	t.Window = &Window{Start: start, End: end}
	return nil
}

// SetTimeGap sets the minimum minutes between executions.
func (t *Task) SetTimeGap(minutes int) error {
	if minutes < 0 || minutes > MaxTimeGap {
		return fmt.Errorf("%w: time gap %d out of range 0..%d", ErrFilterInvalid, minutes, MaxTimeGap)
	}
	t.TimeGap = &minutes
	return nil
}

// SetExpectTimes caps total executions and restarts the count from zero.
// A negative cap means unlimited.
func (t *Task) SetExpectTimes(n int) {
	t.ExpectTimes = &n
	t.ExecuteTimes = 0
}

func (t *Task) ClearExpectTimes() { t.ExpectTimes = nil }

// MarkExecuted records a completed execution at now.
func (t *Task) MarkExecuted(now time.Time) {
	t.ExecuteTimes++
	t.LastExecutedAt = now
}

// Validate reports filters that can never match because they were stored
// out of range.
func (t *Task) Validate() error {
	if t.Window != nil && !t.Window.Valid() {
		return fmt.Errorf("%w: window %d-%d has end before start", ErrFilterInvalid, t.Window.Start, t.Window.End)
	}
	if t.Month != nil && !t.Month.fits(monthWidth) {
		return fmt.Errorf("%w: month set %#x", ErrFilterInvalid, uint32(*t.Month))
	}
	if t.Day != nil && !t.Day.fits(dayWidth) {
		return fmt.Errorf("%w: day set %#x", ErrFilterInvalid, uint32(*t.Day))
	}
	if t.Weekday != nil && !t.Weekday.fits(weekdayWidth) {
		return fmt.Errorf("%w: weekday set %#x", ErrFilterInvalid, uint32(*t.Weekday))
	}
	return nil
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (t Task) Clone() Task {
	cp := t
	cp.ExpectTimes = clonePtr(t.ExpectTimes)
	cp.Month = clonePtr(t.Month)
	cp.Day = clonePtr(t.Day)
	cp.Weekday = clonePtr(t.Weekday)
	cp.Timepoint = clonePtr(t.Timepoint)
	cp.TimeGap = clonePtr(t.TimeGap)
	cp.Window = clonePtr(t.Window)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatMinute(m int) string { return fmt.Sprintf("%02d:%02d", m/60, m%60) }
