package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"noticer/internal/eventbus"
	logx "noticer/pkg/logx"
)

// Service delivers messages through one Transport with rate limiting and
// bounded retry. It is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	transport Transport

	log logx.Logger
	bus eventbus.Bus

	// sleep waits for d or ctx; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, transport Transport, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		transport: transport,
		log:       log,
		bus:       bus,
		sleep:     sleepCtx,
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the rate and retry settings; in-flight sends keep their snapshot.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetTransport replaces the delivery target, e.g. after a config reload.
func (s *Service) SetTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Service) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text, retrying transient failures. The returned error wraps
// ErrDeliveryFailed and the last transport error.
func (s *Service) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return NoRetry(fmt.Errorf("%w: empty message", ErrDeliveryFailed))
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	tr := s.transport
	s.mu.Unlock()

	if tr == nil {
		return fmt.Errorf("%w: no transport configured", ErrDeliveryFailed)
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		err := tr.SendText(ctx, text)
		if err == nil {
			s.record(text, attempt, nil)
			now := time.Now()
			s.bus.Publish(eventbus.Event{Type: eventbus.NotifierSent, Time: now, Data: NotificationEvent{Transport: tr.Name(), Attempts: attempt, At: now}})
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed",
			logx.String("transport", tr.Name()),
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
		)
		if isPermanent(err) || attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		if hint, ok := retryHint(err); ok {
			delay = min(max(delay, hint), cfg.RetryMaxDelay)
		}
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	s.record(text, attempt, lastErr)
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: eventbus.NotifierFailed, Time: now, Data: NotificationEvent{Transport: tr.Name(), Attempts: attempt, At: now, Error: lastErr.Error()}})
	return fmt.Errorf("%w via %s after %d attempt(s): %w", ErrDeliveryFailed, tr.Name(), attempt, lastErr)
}

// SendText lets the service act as a log chat sink.
func (s *Service) SendText(ctx context.Context, text string) error { return s.Send(ctx, text) }

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(text string, attempts int, err error) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	it := HistoryItem{At: time.Now(), Text: text, Attempts: attempts}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), jittered by
// 0.7..1.3 and capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	return min(d, cfg.RetryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
