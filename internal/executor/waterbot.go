package executor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"noticer/internal/task"
)

const waterBotTemplate = "大家好，我是本群的【喝水提醒小助手】，这是今天的第%d轮，希望此刻看到消息的小伙伴可以和我一起喝一杯水，一小时后我会继续提醒大家喝水，和我一起成为一天喝8杯水的人！"

// DefaultWaterBotReset is the daily time the round counter restarts.
const DefaultWaterBotReset = "18:00"

// WaterBot renders the hydration reminder. Each successful delivery
// advances the round; Reset starts the next day's count.
type WaterBot struct {
	mu    sync.Mutex
	round int

	hour, minute int
}

// NewWaterBot parses resetAt as HH:MM; empty means DefaultWaterBotReset.
func NewWaterBot(resetAt string) (*WaterBot, error) {
	resetAt = strings.TrimSpace(resetAt)
	if resetAt == "" {
		resetAt = DefaultWaterBotReset
	}
	h, m, err := task.ParseClock(resetAt)
	if err != nil {
		return nil, err
	}
	return &WaterBot{hour: h, minute: m}, nil
}

func (w *WaterBot) Build(_ task.Task, _ time.Time) (string, error) {
	w.mu.Lock()
	n := w.round + 1
	w.mu.Unlock()
	return fmt.Sprintf(waterBotTemplate, n), nil
}

func (w *WaterBot) Delivered(task.Task, time.Time) {
	w.mu.Lock()
	w.round++
	w.mu.Unlock()
}

func (w *WaterBot) Round() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.round
}

func (w *WaterBot) ResetSpec() string { return fmt.Sprintf("%d %d * * *", w.minute, w.hour) }

func (w *WaterBot) Reset() {
	w.mu.Lock()
	w.round = 0
	w.mu.Unlock()
}
