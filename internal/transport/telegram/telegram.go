// Package telegram sends messages to one chat through the Bot API. It never
// polls for updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const textLimit = 4000

type Config struct {
	Token          string
	ChatID         int64
	ThreadID       int
	ParseMode      string
	DisablePreview bool
}

type Client struct {
	cfg Config
	bot *tele.Bot
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	// Offline skips the getMe round trip at construction.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, bot: b}, nil
}

func (c *Client) Name() string { return "telegram" }

// SendText splits long text into chunks; a failure after the first chunk
// still reports an error so the whole message is retried.
func (c *Client) SendText(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: c.cfg.ChatID}
	opt := &tele.SendOptions{
		ParseMode:             tele.ParseMode(c.cfg.ParseMode),
		DisableWebPagePreview: c.cfg.DisablePreview,
		ThreadID:              c.cfg.ThreadID,
	}
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(chat, chunk, opt); err != nil {
			return fmt.Errorf("telegram send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that keep chunks at least a third of the limit long.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
