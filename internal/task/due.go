package task

import "time"

// IsDue reports whether the task may run at now. It reads the record only.
//
// A stored window with end before start never matches; the remaining
// filters are still evaluated and no error is raised.
func (t *Task) IsDue(now time.Time) bool {
	if t.ExpectTimes != nil && *t.ExpectTimes >= 0 && t.ExecuteTimes >= *t.ExpectTimes {
		return false
	}
	if t.Month != nil && !t.Month.Has(int(now.Month())) {
		return false
	}
	if t.Day != nil && !t.Day.Has(now.Day()) {
		return false
	}
	if t.Weekday != nil && !t.Weekday.Has(isoWeekday(now)) {
		return false
	}

	minute := MinuteOfDay(now)
	if t.Window != nil && (!t.Window.Valid() || !t.Window.contains(minute)) {
		return false
	}
	if t.Timepoint != nil && *t.Timepoint != minute {
		return false
	}
	if t.TimeGap != nil && !t.LastExecutedAt.IsZero() {
		if elapsedMinutes(t.LastExecutedAt, now) < *t.TimeGap {
			return false
		}
	}
	return true
}

// MinuteOfDay returns hour*60+minute of now in its own location.
func MinuteOfDay(now time.Time) int { return now.Hour()*60 + now.Minute() }

// isoWeekday maps Sunday to 7.
func isoWeekday(now time.Time) int {
	wd := int(now.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// elapsedMinutes truncates toward zero, so a clock that moved backwards yields a negative value.
func elapsedMinutes(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}
