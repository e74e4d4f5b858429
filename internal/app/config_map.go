package app

import (
	"fmt"
	"strings"
	"time"

	"noticer/internal/config"
	"noticer/internal/notifier"
	"noticer/internal/storage"
	"noticer/internal/task/dispatch"
	"noticer/internal/task/scheduler"
	"noticer/internal/transport"
	"noticer/internal/transport/dingtalk"
	"noticer/internal/transport/slack"
	"noticer/internal/transport/telegram"
	logx "noticer/pkg/logx"
)

// Defaults for the zero config; DingTalk also applies its own timeout when
// none is set.
const (
	defaultBusyTimeout   = time.Second
	defaultSendTimeout   = 15 * time.Second
	defaultTransportWait = 10 * time.Second
	defaultRetryMax      = 3
	defaultRetryBase     = time.Second
	defaultRetryMaxDelay = 30 * time.Second
	defaultRatePerSec    = 1
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Chat.Enabled,
			MinLevel:   lc.Chat.MinLevel,
			RatePerSec: lc.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			path = "./noticer.db"
		}
		busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "file":
		if path == "" {
			path = "./noticer.json"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "memory":
		return storage.Config{Driver: "memory"}, nil
	case "redis":
		return storage.Config{
			Driver:   "redis",
			Addr:     strings.TrimSpace(sc.Addr),
			Password: sc.Password,
			DB:       sc.DB,
			Prefix:   strings.TrimSpace(sc.Prefix),
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.DurationOr("scheduler.poll_interval", cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.IsEnabled(),
		PollInterval: poll,
		Timezone:     strings.TrimSpace(cfg.Scheduler.Timezone),
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	timeout, err := config.DurationOr("dispatch.send_timeout", cfg.Dispatch.SendTimeout, defaultSendTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		SendTimeout: timeout,
		HistorySize: cfg.Dispatch.HistorySize,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	base, err := config.DurationOr("notifier.retry_base", nc.RetryBase, defaultRetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.DurationOr("notifier.retry_max_delay", nc.RetryMaxDelay, defaultRetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	retries := nc.RetryMax
	if retries == 0 {
		retries = defaultRetryMax
	}
	rate := nc.RatePerSec
	if rate == 0 {
		rate = defaultRatePerSec
	}
	return notifier.Config{
		RatePerSec:    rate,
		RetryMax:      retries,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		HistorySize:   nc.HistorySize,
	}, nil
}

func mapTransportConfig(cfg *config.Config) (transport.Config, error) {
	nc := cfg.Notifier
	timeout, err := config.DurationOr("notifier.timeout", nc.Timeout, defaultTransportWait)
	if err != nil {
		return transport.Config{}, err
	}
	return transport.Config{
		Kind:     nc.Transport,
		Timeout:  timeout,
		DingTalk: dingtalk.Config{URL: nc.DingTalk.URL, Secret: nc.DingTalk.Secret, Timeout: timeout},
		Slack: slack.Config{
			WebhookURL: nc.Slack.WebhookURL,
			Channel:    nc.Slack.Channel,
			Username:   nc.Slack.Username,
			IconEmoji:  nc.Slack.IconEmoji,
		},
		Telegram: telegram.Config{
			Token:          nc.Telegram.Token,
			ChatID:         nc.Telegram.ChatID,
			ThreadID:       nc.Telegram.ThreadID,
			ParseMode:      nc.Telegram.ParseMode,
			DisablePreview: nc.Telegram.DisablePreview,
		},
	}, nil
}
