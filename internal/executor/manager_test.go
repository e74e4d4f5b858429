package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestDefaultBuilder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, desc string
		want       string
		wantErr    bool
	}{
		{name: "water", desc: "drink up", want: "water\ndrink up"},
		{name: "water", want: "water"},
		{desc: "drink up", want: "drink up"},
		{wantErr: true},
	}
	for _, tc := range cases {
		got, err := DefaultBuilder.Build(task.Task{ID: 1, Name: tc.name, Description: tc.desc}, time.Time{})
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for empty task")
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Build(%q,%q)=%q,%v want %q", tc.name, tc.desc, got, err, tc.want)
		}
	}
}

func TestExecuteUsesRegisteredBuilder(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	m := NewManager(s, logx.Nop())
	if err := m.Register(7, BuilderFunc(func(t task.Task, _ time.Time) (string, error) { return "custom", nil })); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := m.Execute(ctx, task.Task{ID: 7, Name: "ignored"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := m.Execute(ctx, task.Task{ID: 8, Name: "plain"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Join(s.sent, ",") != "custom,plain" {
		t.Fatalf("sent=%v", s.sent)
	}
}

func TestExecuteSendFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := &fakeSender{err: boom}
	m := NewManager(s, logx.Nop())
	wb, _ := NewWaterBot("")
	_ = m.Register(1, wb)

	if err := m.Execute(context.Background(), task.Task{ID: 1}); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if wb.Round() != 0 {
		t.Fatalf("round advanced on failed send: %d", wb.Round())
	}
}

func TestRegisterRejectsBadResetSpec(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeSender{}, logx.Nop())
	if err := m.Register(1, badResetter{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := m.Register(1, nil); err == nil {
		t.Fatalf("expected error for nil builder")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeSender{}, logx.Nop(), WithLocation(time.UTC))
	wb, _ := NewWaterBot("06:30")
	_ = m.Register(1, wb)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	m.Stop(ctx)
	m.Stop(ctx)
}

type badResetter struct{}

func (badResetter) Build(task.Task, time.Time) (string, error) { return "x", nil }
func (badResetter) ResetSpec() string                          { return "not a spec" }
func (badResetter) Reset()                                     {}
