package config

// Config is the file format. Durations are Go duration strings ("10s",
// "1m"); clock times are "HH:MM".
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Executors ExecutorsConfig `json:"executors"`

	// Tasks are seeded into the store at startup when no task with the same
	// name exists yet.
	Tasks []TaskConfig `json:"tasks,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors WARN+ log lines to the notifier transport.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the polling loop.
//
// Enabled is a pointer so an omitted key means enabled.
//
// Defaults:
//   - poll_interval: "10s"
//   - timezone: process local
type SchedulerConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
}

func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// DispatchConfig controls task execution.
//
// Defaults: workers 1, send_timeout "15s", history_size 200.
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// NotifierConfig selects and tunes the outbound transport.
//
// Transport is one of dingtalk (default), slack, telegram, log.
type NotifierConfig struct {
	Transport     string `json:"transport,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`

	DingTalk DingTalkConfig `json:"dingtalk"`
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
}

type DingTalkConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

type TelegramConfig struct {
	Token          string `json:"token"`
	ChatID         int64  `json:"chat_id"`
	ThreadID       int    `json:"thread_id,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./noticer.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// Redis.
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type ExecutorsConfig struct {
	WaterBot *WaterBotConfig `json:"waterbot,omitempty"`
}

// WaterBotConfig binds the hydration reminder to one task, by id or, when
// task_id is 0, by name.
type WaterBotConfig struct {
	TaskID   int64  `json:"task_id,omitempty"`
	TaskName string `json:"task_name,omitempty"`
	ResetAt  string `json:"reset_at,omitempty"`
}

// TaskConfig is a seed definition. Omitted filters match anything.
//
// A timepoint alone is due on every poll within that minute; pair it with
// time_gap to send once.
type TaskConfig struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Months      []int         `json:"months,omitempty"`
	Days        []int         `json:"days,omitempty"`
	Weekdays    []int         `json:"weekdays,omitempty"`
	Timepoint   string        `json:"timepoint,omitempty"`
	Window      *WindowConfig `json:"window,omitempty"`
	// TimeGap is the minimum minutes between runs.
	TimeGap     *int `json:"time_gap,omitempty"`
	ExpectTimes *int `json:"expect_times,omitempty"`
}

type WindowConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
