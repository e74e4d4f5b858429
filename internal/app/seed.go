package app

import (
	"context"
	"fmt"
	"strings"

	"noticer/internal/config"
	"noticer/internal/executor"
	"noticer/internal/storage"
	logx "noticer/pkg/logx"
)

// seedTasks creates configured tasks whose names are not in the store yet and
// returns the id of every known task by name. Existing tasks are never
// modified.
func seedTasks(ctx context.Context, st storage.Store, seeds []config.TaskConfig, log logx.Logger) (map[string]int64, error) {
	existing, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	byName := make(map[string]int64, len(existing)+len(seeds))
	for _, t := range existing {
		if _, dup := byName[t.Name]; !dup {
			byName[t.Name] = t.ID
		}
	}

	for _, sc := range seeds {
		t, err := sc.Task()
		if err != nil {
			return nil, err
		}
		if id, ok := byName[t.Name]; ok {
			log.Debug("seed task exists", logx.TaskID(id), logx.String("name", t.Name))
			continue
		}
		id, err := st.Create(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("create task %q: %w", t.Name, err)
		}
		byName[t.Name] = id
		log.Info("seed task created", logx.TaskID(id), logx.String("name", t.Name))
	}
	return byName, nil
}

// registerWaterBot binds the hydration reminder to its task. A configured
// task_id wins over task_name.
func registerWaterBot(m *executor.Manager, cfg *config.WaterBotConfig, byName map[string]int64) (int64, error) {
	id := cfg.TaskID
	if id == 0 {
		name := strings.TrimSpace(cfg.TaskName)
		var ok bool
		if id, ok = byName[name]; !ok {
			return 0, fmt.Errorf("executors.waterbot: no task named %q", name)
		}
	}
	wb, err := executor.NewWaterBot(cfg.ResetAt)
	if err != nil {
		return 0, fmt.Errorf("executors.waterbot: %w", err)
	}
	if err := m.Register(id, wb); err != nil {
		return 0, err
	}
	return id, nil
}
