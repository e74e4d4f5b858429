// Package transport builds the configured notifier.Transport.
package transport

import (
	"fmt"
	"strings"
	"time"

	"noticer/internal/notifier"
	"noticer/internal/transport/dingtalk"
	"noticer/internal/transport/logsink"
	"noticer/internal/transport/slack"
	"noticer/internal/transport/telegram"
	logx "noticer/pkg/logx"
)

type Config struct {
	Kind     string
	Timeout  time.Duration
	DingTalk dingtalk.Config
	Slack    slack.Config
	Telegram telegram.Config
}

// Open returns the transport named by cfg.Kind (dingtalk, slack, telegram or
// log). An empty kind means dingtalk.
func Open(cfg Config, log logx.Logger) (notifier.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "dingtalk":
		dt := cfg.DingTalk
		if dt.Timeout <= 0 {
			dt.Timeout = cfg.Timeout
		}
		return dingtalk.New(dt)
	case "slack":
		return slack.New(cfg.Slack)
	case "telegram":
		return telegram.New(cfg.Telegram)
	case "log", "dryrun", "dry-run":
		return logsink.New(log.With(logx.String("comp", "transport.log"))), nil
	default:
		return nil, fmt.Errorf("unknown notifier transport %q", cfg.Kind)
	}
}
