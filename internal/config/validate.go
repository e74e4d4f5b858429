package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

// Validate checks values a reload must not commit: unparsable durations,
// unknown drivers and transports, and broken seed tasks. Missing secrets are
// reported by the transport constructors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if lv := strings.TrimSpace(cfg.Logging.Chat.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.chat.min_level: unknown level %q", lv))
	}

	_, err := ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	add(err)
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	_, err = ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout)
	add(err)
	if cfg.Dispatch.Workers < 0 {
		add(errors.New("dispatch.workers must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Notifier.Transport)) {
	case "", "dingtalk", "slack", "telegram", "log", "dryrun", "dry-run":
	default:
		add(fmt.Errorf("notifier.transport: unknown transport %q", cfg.Notifier.Transport))
	}
	for path, raw := range map[string]string{
		"notifier.retry_base":      cfg.Notifier.RetryBase,
		"notifier.retry_max_delay": cfg.Notifier.RetryMaxDelay,
		"notifier.timeout":         cfg.Notifier.Timeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	if cfg.Notifier.RetryMax < 0 {
		add(errors.New("notifier.retry_max must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory", "file", "redis":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	if wb := cfg.Executors.WaterBot; wb != nil {
		if wb.TaskID == 0 && strings.TrimSpace(wb.TaskName) == "" {
			add(errors.New("executors.waterbot: task_id or task_name is required"))
		}
		if strings.TrimSpace(wb.ResetAt) != "" {
			if _, _, err := task.ParseClock(wb.ResetAt); err != nil {
				add(fmt.Errorf("executors.waterbot.reset_at: %w", err))
			}
		}
	}

	seen := map[string]bool{}
	for i, tc := range cfg.Tasks {
		if _, err := tc.Task(); err != nil {
			add(fmt.Errorf("tasks[%d]: %w", i, err))
			continue
		}
		name := strings.TrimSpace(tc.Name)
		if seen[name] {
			add(fmt.Errorf("tasks[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
	}

	return errors.Join(errs...)
}
