package config

import (
	"fmt"
	"strings"

	"noticer/internal/task"
)

// Task builds the seed definition. Bounds are enforced by the task setters.
func (c TaskConfig) Task() (task.Task, error) {
	t := task.Task{Name: strings.TrimSpace(c.Name), Description: c.Description}
	if t.Name == "" {
		return task.Task{}, fmt.Errorf("task name is required")
	}
	wrap := func(err error) error { return fmt.Errorf("task %q: %w", t.Name, err) }

	if c.Months != nil {
		if err := t.AllowMonths(c.Months...); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if c.Days != nil {
		if err := t.AllowDays(c.Days...); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if c.Weekdays != nil {
		if err := t.AllowWeekdays(c.Weekdays...); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if s := strings.TrimSpace(c.Timepoint); s != "" {
		h, m, err := task.ParseClock(s)
		if err != nil {
			return task.Task{}, wrap(err)
		}
		if err := t.SetTimepoint(h, m); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if c.Window != nil {
		sh, sm, err := task.ParseClock(c.Window.Start)
		if err != nil {
			return task.Task{}, wrap(fmt.Errorf("window start: %w", err))
		}
		eh, em, err := task.ParseClock(c.Window.End)
		if err != nil {
			return task.Task{}, wrap(fmt.Errorf("window end: %w", err))
		}
		if err := t.SetWindow(sh*60+sm, eh*60+em); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if c.TimeGap != nil {
		if err := t.SetTimeGap(*c.TimeGap); err != nil {
			return task.Task{}, wrap(err)
		}
	}
	if c.ExpectTimes != nil {
		t.SetExpectTimes(*c.ExpectTimes)
	}
	return t, nil
}
