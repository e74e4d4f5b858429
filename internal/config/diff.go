package config

import (
	"reflect"
	"strings"

	logx "noticer/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe
// structured attrs for logging. Secrets (webhook URLs, tokens, passwords)
// are reported only as *_set booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.IsEnabled()),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		// Dispatch settings apply on restart only.
		changed = append(changed, "dispatch")
		attrs = append(attrs, logx.Int("dispatch.workers", newCfg.Dispatch.Workers))
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		n := newCfg.Notifier
		attrs = append(attrs,
			logx.String("notifier.transport", strings.TrimSpace(n.Transport)),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Int("notifier.retry_max", n.RetryMax),
			logx.Bool("notifier.transport_changed", transportChanged(oldCfg.Notifier, n)),
			logx.Bool("notifier.dingtalk_url_set", strings.TrimSpace(n.DingTalk.URL) != ""),
			logx.Bool("notifier.dingtalk_secret_set", strings.TrimSpace(n.DingTalk.Secret) != ""),
			logx.Bool("notifier.slack_webhook_set", strings.TrimSpace(n.Slack.WebhookURL) != ""),
			logx.Bool("notifier.telegram_token_set", strings.TrimSpace(n.Telegram.Token) != ""),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.password_set", newCfg.Storage.Password != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Executors, newCfg.Executors) || !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.Int("tasks.seed_count", len(newCfg.Tasks)))
	}

	return changed, attrs
}

// TransportChanged reports whether a reload needs a new transport instance
// rather than only new rate or retry settings.
func TransportChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return transportChanged(oldCfg.Notifier, newCfg.Notifier)
}

func transportChanged(a, b NotifierConfig) bool {
	return !strings.EqualFold(strings.TrimSpace(a.Transport), strings.TrimSpace(b.Transport)) ||
		a.Timeout != b.Timeout ||
		a.DingTalk != b.DingTalk ||
		a.Slack != b.Slack ||
		a.Telegram != b.Telegram
}
