// Package logsink is a dry-run transport that writes messages to the logger.
package logsink

import (
	"context"

	logx "noticer/pkg/logx"
)

type Transport struct {
	log logx.Logger
}

func New(log logx.Logger) *Transport {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Transport{log: log}
}

func (t *Transport) Name() string { return "log" }

func (t *Transport) SendText(ctx context.Context, text string) error {
	t.log.Info("notification (dry run)", logx.String("text", text))
	return nil
}
