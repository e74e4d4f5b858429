package notifier

import (
	"context"
	"time"
)

// Transport posts a text payload to one destination.
type Transport interface {
	Name() string
	SendText(ctx context.Context, text string) error
}

// Config controls rate limiting and the in-call retry policy.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	HistorySize   int
}

type HistoryItem struct {
	At       time.Time
	Text     string
	Attempts int
	Error    string
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	Transport string    `json:"transport"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
