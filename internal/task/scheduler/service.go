package scheduler

import (
	"context"
	"strings"
	"time"

	"noticer/internal/eventbus"
	rtsup "noticer/internal/runtime/supervisor"
	"noticer/internal/task/queue"
	logx "noticer/pkg/logx"
)

func New(cfg Config, store Lister, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		store: store,
		log:   log,
		bus:   bus,
		now:   time.Now,
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.q == nil {
		s.q = queue.New()
	}
	s.applyLocked(cfg)
	return s
}

// Queue is the output of the scheduler. It is closed by Stop after the final
// cycle's ids have been pushed.
func (s *Service) Queue() *queue.Queue { return s.q }

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps interval and timezone. A running loop picks the new interval up
// after its current sleep is interrupted.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.applyLocked(cfg)
	running := s.stop != nil
	s.mu.Unlock()

	if running && old.PollInterval != s.interval() {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s.cfg = cfg
	s.loc = loadLocation(cfg.Timezone, s.log)
	s.statsMu.Lock()
	s.stats.Timezone = s.loc.String()
	s.statsMu.Unlock()
}

func (s *Service) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PollInterval
}

func (s *Service) cycleTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.cfg.CycleTimeout
	if d <= 0 {
		d = max(s.cfg.PollInterval, 5*time.Second)
	}
	return d
}

// Location is the zone used to evaluate calendar and time-of-day filters.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func loadLocation(name string, log logx.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("invalid timezone, using local", logx.String("tz", name), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start launches the polling loop. It is a no-op when disabled or already
// running. The first cycle runs immediately.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || s.q.Closed() {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	s.stop = make(chan struct{})
	s.exited = make(chan struct{})
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler.supervisor"))),
		rtsup.WithCancelOnError(false),
	)
	stop, exited := s.stop, s.exited
	s.sup.Go0("scheduler.loop", func(c context.Context) {
		defer close(exited)
		s.loop(c, stop)
	})
	s.statsMu.Lock()
	s.stats.Running = true
	s.statsMu.Unlock()
	s.log.Info("scheduler started", logx.Duration("poll_interval", s.cfg.PollInterval), logx.String("tz", s.loc.String()))
}

// Stop lets the in-flight cycle finish, prevents further cycles and closes
// the queue. Ids already queued stay poppable.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	stop, exited, sup := s.stop, s.exited, s.sup
	s.stop, s.exited, s.sup = nil, nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		select {
		case <-exited:
		case <-ctx.Done():
			s.log.Warn("scheduler stop timed out waiting for cycle")
			sup.Cancel()
		}
		_ = sup.Stop(ctx)
	}
	s.q.Close()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}) {
	for {
		// Cycles are not tied to ctx so a stop never aborts a listing halfway.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout())
		_, _ = s.Poll(cctx)
		cancel()

		t := time.NewTimer(s.interval())
		select {
		case <-stop:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		case <-s.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

func (s *Service) Snapshot() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.LastDue = append([]int64(nil), s.stats.LastDue...)
	return out
}
