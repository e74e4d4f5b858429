package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	logx "noticer/pkg/logx"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func noEnv(string) (string, bool) { return "", false }

func parse(t *testing.T, p string, lookup func(string) (string, bool)) (*Config, error) {
	t.Helper()
	m := NewConfigManager(p)
	m.SetEnvLookup(lookup)
	return m.Parse()
}

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  poll_interval: 5s
  timezone: Asia/Shanghai
notifier:
  transport: dingtalk
  retry_max: 3
  dingtalk:
    url: https://oapi.dingtalk.com/robot/send?access_token=file
executors:
  waterbot:
    task_name: drink
    reset_at: "18:00"
tasks:
  - name: drink
    description: hydrate
    weekdays: [1, 2, 3, 4, 5]
    window: {start: "09:00", end: "18:00"}
    time_gap: 60
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, writeConfig(t, "noticer.yaml", sampleYAML), noEnv)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.PollInterval != "5s" || !cfg.Scheduler.IsEnabled() {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Executors.WaterBot == nil || cfg.Executors.WaterBot.TaskName != "drink" {
		t.Fatalf("waterbot = %+v", cfg.Executors.WaterBot)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].TimeGap == nil || *cfg.Tasks[0].TimeGap != 60 {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseJSONRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"unknown field", `{"scheduler":{"poll_every":"5s"}}`},
		{"trailing data", `{"scheduler":{}} {}`},
		{"yaml unknown field", "storage:\n  drvier: sqlite\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			name := "noticer.json"
			if strings.HasPrefix(tc.name, "yaml") {
				name = "noticer.yml"
			}
			if _, err := parse(t, writeConfig(t, name, tc.body), noEnv); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEmptyYAMLIsZeroConfig(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, writeConfig(t, "empty.yaml", ""), noEnv)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvDingTalkURL:     "https://example.invalid/env",
		EnvDingTalkSecret:  "SECxyz",
		EnvTelegramChatID:  "-100123",
		EnvStoragePath:     " /var/lib/noticer/tasks.db ",
		EnvSlackWebhookURL: "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := parse(t, writeConfig(t, "noticer.yaml", sampleYAML), lookup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.Notifier.DingTalk.URL; got != env[EnvDingTalkURL] {
		t.Fatalf("dingtalk url = %q", got)
	}
	if cfg.Notifier.DingTalk.Secret != "SECxyz" {
		t.Fatalf("secret not applied")
	}
	if cfg.Notifier.Telegram.ChatID != -100123 {
		t.Fatalf("chat id = %d", cfg.Notifier.Telegram.ChatID)
	}
	if cfg.Storage.Path != "/var/lib/noticer/tasks.db" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Notifier.Slack.WebhookURL != "" {
		t.Fatalf("empty env value must not override")
	}
}

func TestEnvBadChatID(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == EnvTelegramChatID {
			return "chat", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), EnvTelegramChatID) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadDotEnvMissing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("explicit missing file should fail")
	}
}

func TestTaskConfigConversion(t *testing.T) {
	t.Parallel()

	gap, times := 30, 8
	tc := TaskConfig{
		Name:        " drink ",
		Months:      []int{1, 12},
		Days:        []int{},
		Weekdays:    []int{7},
		Timepoint:   "09:05",
		Window:      &WindowConfig{Start: "08:00", End: "20:30"},
		TimeGap:     &gap,
		ExpectTimes: &times,
	}
	tk, err := tc.Task()
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if tk.Name != "drink" {
		t.Fatalf("name = %q", tk.Name)
	}
	if m, ok := tk.Months(); !ok || len(m) != 2 || m[0] != 1 || m[1] != 12 {
		t.Fatalf("months = %v %v", m, ok)
	}
	if d, ok := tk.Days(); !ok || len(d) != 0 {
		t.Fatalf("empty day list must be a present, empty filter: %v %v", d, ok)
	}
	if *tk.Timepoint != 9*60+5 {
		t.Fatalf("timepoint = %d", *tk.Timepoint)
	}
	if tk.Window.Start != 480 || tk.Window.End != 20*60+30 {
		t.Fatalf("window = %+v", *tk.Window)
	}
	if *tk.TimeGap != 30 || *tk.ExpectTimes != 8 {
		t.Fatalf("gap/times = %d/%d", *tk.TimeGap, *tk.ExpectTimes)
	}
}

func TestTaskConfigErrors(t *testing.T) {
	t.Parallel()

	bigGap := 24*60 + 1
	cases := []struct {
		name string
		tc   TaskConfig
	}{
		{"no name", TaskConfig{}},
		{"bad month", TaskConfig{Name: "x", Months: []int{13}}},
		{"bad weekday", TaskConfig{Name: "x", Weekdays: []int{0}}},
		{"bad timepoint", TaskConfig{Name: "x", Timepoint: "24:00"}},
		{"reversed window", TaskConfig{Name: "x", Window: &WindowConfig{Start: "18:00", End: "09:00"}}},
		{"gap too large", TaskConfig{Name: "x", TimeGap: &bigGap}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tc.tc.Task(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Logging:   LoggingConfig{Level: "loud"},
		Scheduler: SchedulerConfig{PollInterval: "soon", Timezone: "Mars/Olympus"},
		Dispatch:  DispatchConfig{Workers: -1},
		Notifier:  NotifierConfig{Transport: "pigeon", RetryBase: "-1s"},
		Storage:   StorageConfig{Driver: "mongo"},
		Executors: ExecutorsConfig{WaterBot: &WaterBotConfig{ResetAt: "late"}},
		Tasks:     []TaskConfig{{Name: "a"}, {Name: "a"}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{
		"logging.level", "scheduler.poll_interval", "scheduler.timezone",
		"dispatch.workers", "notifier.transport", "notifier.retry_base",
		"storage.driver", "task_id or task_name", "reset_at", "duplicate name",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q:\n%v", want, err)
		}
	}
	if Validate(nil) == nil {
		t.Fatalf("nil config must fail")
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()

	d, err := DurationOr("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("default = %v %v", d, err)
	}
	d, err = DurationOr("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit = %v %v", d, err)
	}
	if _, err := DurationOr("x", "-1s", time.Second); err == nil {
		t.Fatalf("negative must fail")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Notifier: NotifierConfig{DingTalk: DingTalkConfig{URL: "https://a", Secret: "s1"}}}
	newCfg := &Config{
		Notifier:  NotifierConfig{DingTalk: DingTalkConfig{URL: "https://b", Secret: "s2"}},
		Scheduler: SchedulerConfig{PollInterval: "30s"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "scheduler,notifier" {
		t.Fatalf("changed = %v", changed)
	}
	var buf bytes.Buffer
	logx.New(&buf, "info").Info("diff", attrs...)
	if strings.Contains(buf.String(), "s2") || !strings.Contains(buf.String(), "dingtalk_secret_set") {
		t.Fatalf("summary leaks or omits secret flag: %s", buf.String())
	}
	if !TransportChanged(oldCfg, newCfg) {
		t.Fatalf("dingtalk change must require a new transport")
	}

	tuned := *oldCfg
	tuned.Notifier.RetryMax = 5
	if TransportChanged(oldCfg, &tuned) {
		t.Fatalf("retry change must not rebuild transport")
	}
	if changed, _ := SummarizeConfigChange(oldCfg, oldCfg); len(changed) != 0 {
		t.Fatalf("no-op diff = %v", changed)
	}
}

func TestLoadCommitsAndReloadPublishes(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, "noticer.json", `{"scheduler":{"poll_interval":"5s"}}`)
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get().Scheduler.PollInterval != "5s" {
		t.Fatalf("get = %+v", m.Get())
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// Unchanged content is not republished.
	m.reload(t.Context())
	select {
	case <-ch:
		t.Fatalf("unexpected publish")
	default:
	}

	if err := os.WriteFile(p, []byte(`{"scheduler":{"poll_interval":"7s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(t.Context())
	select {
	case cfg := <-ch:
		if cfg.Scheduler.PollInterval != "7s" {
			t.Fatalf("published = %+v", cfg.Scheduler)
		}
	default:
		t.Fatalf("no publish")
	}

	rejected := errors.New("nope")
	m.SetValidator(func(_ context.Context, _ *Config) error { return rejected })
	if err := os.WriteFile(p, []byte(`{"scheduler":{"poll_interval":"9s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(t.Context())
	if m.Get().Scheduler.PollInterval != "7s" {
		t.Fatalf("rejected config committed")
	}
}
