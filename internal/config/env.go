package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvDingTalkURL     = "DINGTALK_URL"
	EnvDingTalkSecret  = "DINGTALK_SECRET"
	EnvSlackWebhookURL = "SLACK_WEBHOOK_URL"
	EnvTelegramToken   = "TELEGRAM_TOKEN"
	EnvTelegramChatID  = "TELEGRAM_CHAT_ID"
	EnvStoragePath     = "NOTICER_STORAGE_PATH"
	EnvRedisAddr       = "REDIS_ADDR"
)

// LoadDotEnv loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path tries ./.env and
// ignores its absence.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies secrets and deployment paths from the environment into cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvDingTalkURL); ok {
		cfg.Notifier.DingTalk.URL = v
	}
	if v, ok := get(EnvDingTalkSecret); ok {
		cfg.Notifier.DingTalk.Secret = v
	}
	if v, ok := get(EnvSlackWebhookURL); ok {
		cfg.Notifier.Slack.WebhookURL = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Notifier.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTelegramChatID, err)
		}
		cfg.Notifier.Telegram.ChatID = id
	}
	if v, ok := get(EnvStoragePath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvRedisAddr); ok {
		cfg.Storage.Addr = v
	}
	return nil
}
