package task

import (
	"testing"
	"time"
)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func TestIsDueNoFilters(t *testing.T) {
	t.Parallel()
	var tk Task
	for _, now := range []time.Time{
		at(time.January, 1, 0, 0),
		at(time.February, 29, 12, 30),
		at(time.December, 31, 23, 59),
	} {
		if !tk.IsDue(now) {
			t.Fatalf("IsDue(%v) = false, want true", now)
		}
	}

	tk.SetExpectTimes(3)
	now := at(time.March, 3, 9, 0)
	for i := 0; i < 3; i++ {
		if !tk.IsDue(now) {
			t.Fatalf("run %d: IsDue = false before cap", i)
		}
		tk.MarkExecuted(now)
	}
	if tk.IsDue(now.Add(24 * time.Hour)) {
		t.Fatal("IsDue = true after cap reached")
	}
}

func TestIsDueMonthFilter(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.AllowMonths(1, 6); err != nil {
		t.Fatalf("AllowMonths: %v", err)
	}
	for m := time.January; m <= time.December; m++ {
		want := m == time.January || m == time.June
		if got := tk.IsDue(at(m, 15, 10, 0)); got != want {
			t.Fatalf("month %v: IsDue = %v, want %v", m, got, want)
		}
	}
}

func TestIsDueEmptySetMatchesNothing(t *testing.T) {
	t.Parallel()
	empty := Set(0)
	tests := []struct {
		name string
		tk   Task
	}{
		{name: "month", tk: Task{Month: &empty}},
		{name: "day", tk: Task{Day: &empty}},
		{name: "weekday", tk: Task{Weekday: &empty}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for d := 1; d <= 7; d++ {
				if tt.tk.IsDue(at(time.May, d, 12, 0)) {
					t.Fatalf("empty %s filter matched day %d", tt.name, d)
				}
			}
		})
	}
}

func TestIsDueWeekdayISO(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.AllowWeekdays(7); err != nil {
		t.Fatalf("AllowWeekdays: %v", err)
	}
	// 2024-01-14 is a Sunday, 2024-01-15 a Monday.
	if !tk.IsDue(at(time.January, 14, 9, 0)) {
		t.Fatal("Sunday should match weekday 7")
	}
	if tk.IsDue(at(time.January, 15, 9, 0)) {
		t.Fatal("Monday should not match weekday 7")
	}

	var mon Task
	_ = mon.AllowWeekdays(1)
	if !mon.IsDue(at(time.January, 15, 9, 0)) {
		t.Fatal("Monday should match weekday 1")
	}
}

func TestIsDueDayFilter(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.AllowDays(1, 31); err != nil {
		t.Fatalf("AllowDays: %v", err)
	}
	tests := []struct {
		now  time.Time
		want bool
	}{
		{now: at(time.January, 1, 8, 0), want: true},
		{now: at(time.January, 2, 8, 0), want: false},
		{now: at(time.January, 31, 8, 0), want: true},
		{now: at(time.April, 30, 8, 0), want: false},
	}
	for _, tt := range tests {
		if got := tk.IsDue(tt.now); got != tt.want {
			t.Fatalf("IsDue(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestIsDueWindowBoundaries(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.SetWindow(8*60, 17*60); err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	tests := []struct {
		hour, minute int
		want         bool
	}{
		{7, 59, false},
		{8, 0, true},
		{12, 0, true},
		{17, 0, true},
		{17, 1, false},
	}
	for _, tt := range tests {
		if got := tk.IsDue(at(time.July, 1, tt.hour, tt.minute)); got != tt.want {
			t.Fatalf("IsDue(%02d:%02d) = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestIsDueInvalidWindowIsInert(t *testing.T) {
	t.Parallel()
	tk := Task{Window: &Window{Start: 8 * 60, End: 7 * 60}}
	for _, hm := range [][2]int{{0, 0}, {7, 0}, {7, 30}, {8, 0}, {12, 0}, {23, 59}} {
		if tk.IsDue(at(time.July, 1, hm[0], hm[1])) {
			t.Fatalf("invalid window matched at %02d:%02d", hm[0], hm[1])
		}
	}
	if err := tk.Validate(); err == nil {
		t.Fatal("Validate should report the inverted window")
	}
}

func TestIsDueTimepoint(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.SetTimepoint(8, 30); err != nil {
		t.Fatalf("SetTimepoint: %v", err)
	}
	base := at(time.March, 4, 8, 30)
	if !tk.IsDue(base) || !tk.IsDue(base.Add(59*time.Second)) {
		t.Fatal("timepoint should match the whole minute")
	}
	if tk.IsDue(base.Add(time.Minute)) || tk.IsDue(base.Add(-time.Second)) {
		t.Fatal("timepoint matched outside its minute")
	}
}

func TestIsDueExpectOnceIsPermanent(t *testing.T) {
	t.Parallel()
	var tk Task
	tk.SetExpectTimes(1)
	now := at(time.January, 1, 9, 0)
	if !tk.IsDue(now) {
		t.Fatal("IsDue = false before first run")
	}
	tk.MarkExecuted(now)
	for _, d := range []time.Duration{0, time.Minute, 24 * time.Hour, 400 * 24 * time.Hour} {
		if tk.IsDue(now.Add(d)) {
			t.Fatalf("IsDue = true %v after the only allowed run", d)
		}
	}
}

func TestIsDueNegativeCapIsUnlimited(t *testing.T) {
	t.Parallel()
	var tk Task
	tk.SetExpectTimes(-1)
	now := at(time.January, 1, 9, 0)
	for i := 0; i < 10; i++ {
		tk.MarkExecuted(now)
	}
	if !tk.IsDue(now) {
		t.Fatal("negative cap should not limit runs")
	}
}

func TestIsDueTimeGap(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := tk.SetTimeGap(1); err != nil {
		t.Fatalf("SetTimeGap: %v", err)
	}
	now := at(time.August, 8, 10, 0).Add(17 * time.Second)
	if !tk.IsDue(now) {
		t.Fatal("gap should not block a task that never ran")
	}
	tk.MarkExecuted(now)

	clock := now
	if tk.IsDue(clock) {
		t.Fatal("IsDue = true immediately after execution")
	}
	clock = clock.Add(59 * time.Second)
	if tk.IsDue(clock) {
		t.Fatal("IsDue = true before the gap elapsed")
	}
	clock = clock.Add(time.Second)
	if !tk.IsDue(clock) {
		t.Fatal("IsDue = false once the gap elapsed")
	}
}

func TestIsDueDoesNotMutate(t *testing.T) {
	t.Parallel()
	var tk Task
	tk.SetExpectTimes(5)
	_ = tk.SetTimeGap(10)
	before := tk.Clone()
	for i := 0; i < 3; i++ {
		tk.IsDue(at(time.May, 5, 5, i))
	}
	if tk.ExecuteTimes != before.ExecuteTimes || !tk.LastExecutedAt.Equal(before.LastExecutedAt) {
		t.Fatal("IsDue changed run state")
	}
}

func TestIsDueUsesLocationOfNow(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+8", 8*3600)
	var tk Task
	_ = tk.SetTimepoint(9, 0)
	utc := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	if tk.IsDue(utc) {
		t.Fatal("01:00 UTC should not match 09:00")
	}
	if !tk.IsDue(utc.In(loc)) {
		t.Fatal("09:00 UTC+8 should match 09:00")
	}
}
