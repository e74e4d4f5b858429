package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

func TestWaterBotRounds(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	m := NewManager(s, logx.Nop())
	wb, err := NewWaterBot("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = m.Register(1, wb)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := m.Execute(ctx, task.Task{ID: 1}); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if !strings.Contains(s.sent[0], "第1轮") || !strings.Contains(s.sent[1], "第2轮") {
		t.Fatalf("sent=%q", s.sent)
	}

	wb.Reset()
	_ = m.Execute(ctx, task.Task{ID: 1})
	if !strings.Contains(s.sent[2], "第1轮") {
		t.Fatalf("after reset: %q", s.sent[2])
	}
}

func TestWaterBotResetSpec(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "0 18 * * *"},
		{in: "06:05", want: "5 6 * * *"},
		{in: "24:00", wantErr: true},
		{in: "1800", wantErr: true},
		{in: "12:60", wantErr: true},
	}
	for _, tc := range cases {
		wb, err := NewWaterBot(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NewWaterBot(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewWaterBot(%q): %v", tc.in, err)
		}
		if got := wb.ResetSpec(); got != tc.want {
			t.Fatalf("ResetSpec()=%q, want %q", got, tc.want)
		}
	}
}

func TestWaterBotBuildDoesNotAdvance(t *testing.T) {
	t.Parallel()
	wb, _ := NewWaterBot("")
	a, _ := wb.Build(task.Task{}, time.Now())
	b, _ := wb.Build(task.Task{}, time.Now())
	if a != b || wb.Round() != 0 {
		t.Fatalf("Build mutated state: %q %q round=%d", a, b, wb.Round())
	}
}
