package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

// openers returns a fresh store per driver that runs without external services.
func openers(t *testing.T) map[string]func(t *testing.T) Store {
	m := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "file", Path: filepath.Join(t.TempDir(), "tasks.json")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "noticer.db"), BusyTimeout: time.Second}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		m["redis"] = func(t *testing.T) Store {
			prefix := "noticer-test:" + t.Name() + ":" + time.Now().Format("150405.000000000") + ":"
			st, err := Open(context.Background(), Config{Driver: "redis", Addr: addr, Prefix: prefix}, logx.Nop())
			require.NoError(t, err)
			return st
		}
	}
	return m
}

func fullTask(t *testing.T) task.Task {
	tk := task.Task{Name: "water", Description: "drink water"}
	require.NoError(t, tk.AllowMonths(1, 6, 12))
	require.NoError(t, tk.AllowDays(1, 15, 31))
	require.NoError(t, tk.AllowWeekdays(1, 2, 3, 4, 5))
	require.NoError(t, tk.SetTimepoint(9, 30))
	require.NoError(t, tk.SetWindow(8*60, 18*60))
	require.NoError(t, tk.SetTimeGap(60))
	tk.SetExpectTimes(8)
	return tk
}

func requireSameTask(t *testing.T, want, got task.Task) {
	t.Helper()
	require.True(t, want.LastExecutedAt.Equal(got.LastExecutedAt),
		"last_executed_at: want %v, got %v", want.LastExecutedAt, got.LastExecutedAt)
	want.LastExecutedAt, got.LastExecutedAt = time.Time{}, time.Time{}
	require.Equal(t, want, got)
}
