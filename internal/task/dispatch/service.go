package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"noticer/internal/eventbus"
	rtsup "noticer/internal/runtime/supervisor"
	"noticer/internal/storage"
	"noticer/internal/task/queue"
	logx "noticer/pkg/logx"
)

type Service struct {
	cfg   Config
	store Store
	exec  Executor
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time
	loc   func() *time.Location

	locks    *keyLock
	inFlight atomic.Int32

	mu  sync.Mutex
	sup *rtsup.Supervisor

	hmu     sync.Mutex
	history []Result
	counts  map[Outcome]uint64
}

func New(cfg Config, store Store, exec Executor, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		exec:   exec,
		log:    log,
		bus:    bus,
		now:    time.Now,
		loc:    func() *time.Location { return time.Local },
		locks:  newKeyLock(),
		counts: map[Outcome]uint64{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dispatch loads, executes and persists one task, evaluating it at the
// current instant. See DispatchAt.
func (s *Service) Dispatch(ctx context.Context, id int64) error {
	return s.DispatchAt(ctx, id, time.Time{})
}

// DispatchAt loads, executes and persists one task emitted at at. The loaded
// record is re-checked against at, not the dispatch clock, so a late
// dispatch of a timepoint or window emission still sends while a duplicate
// emission of an already recorded run is skipped. A zero at means now.
// Stale emissions return nil. Delivery failures leave the run state
// untouched and are returned.
func (s *Service) DispatchAt(ctx context.Context, id int64, at time.Time) error {
	unlock := s.locks.lock(id)
	defer unlock()
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	res := Result{RunID: uuid.NewString(), TaskID: id}
	start := time.Now()
	log := s.log.With(logx.TaskID(id), logx.String("run_id", res.RunID))

	// Send and save are never abandoned halfway; the timeout bounds them.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	defer cancel()

	t, err := s.store.Get(wctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Info("task vanished before dispatch")
		s.finish(res, OutcomeNotFound, start, err)
		return err
	case err != nil:
		log.Warn("task load failed", logx.Err(err))
		s.finish(res, OutcomeStoreError, start, err)
		return err
	}
	res.Name = t.Name
	log = log.With(logx.String("task", t.Name))

	if at.IsZero() {
		at = s.now()
	}
	if !t.IsDue(at.In(s.loc())) {
		log.Debug("task no longer due, skipping", logx.Time("emitted_at", at))
		s.finish(res, OutcomeNotDue, start, nil)
		return nil
	}

	if err := s.exec.Execute(wctx, t); err != nil {
		log.Warn("task delivery failed, retrying when next due", logx.Err(err))
		s.finish(res, OutcomeFailed, start, err)
		return err
	}

	t.MarkExecuted(s.now())
	if err := s.store.Save(wctx, t); err != nil {
		err = fmt.Errorf("%w: task %d: %w", ErrPersistenceAfterSend, id, err)
		log.Warn("message sent but run state not saved", logx.Err(err), logx.Int("execute_times", t.ExecuteTimes))
		s.finish(res, OutcomePersistFailed, start, err)
		return err
	}

	log.Info("task dispatched", logx.Int("execute_times", t.ExecuteTimes), logx.Duration("took", time.Since(start)))
	s.finish(res, OutcomeSent, start, nil)
	return nil
}

func (s *Service) finish(res Result, outcome Outcome, start time.Time, err error) {
	res.Outcome = outcome
	res.At = start
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
	}

	s.hmu.Lock()
	s.counts[outcome]++
	s.history = append(s.history, res)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventType(outcome), Time: start, Data: res})
}

func eventType(o Outcome) string {
	switch o {
	case OutcomeSent:
		return eventbus.DispatchSent
	case OutcomePersistFailed:
		return eventbus.DispatchPersistFailed
	case OutcomeNotDue, OutcomeNotFound:
		return eventbus.DispatchSkipped
	default:
		return eventbus.DispatchFailed
	}
}

// Run pops ids with cfg.Workers workers until q is closed and drained or ctx
// is done. Per-task errors are contained.
func (s *Service) Run(ctx context.Context, q *queue.Queue) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, q)
		}()
	}
	wg.Wait()
}

func (s *Service) worker(ctx context.Context, q *queue.Queue) {
	for {
		it, ok, err := q.Pop(ctx)
		if err != nil || !ok {
			return
		}
		_ = s.DispatchAt(ctx, it.ID, it.At)
	}
}

// Start runs the workers under a supervisor. Stop waits for them.
func (s *Service) Start(ctx context.Context, q *queue.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch.supervisor"))),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("dispatch.worker.%d", i)
		s.sup.GoRestart(name, func(c context.Context) error {
			s.worker(c, q)
			return nil
		})
	}
	s.log.Info("dispatch started", logx.Int("workers", s.cfg.Workers), logx.Duration("send_timeout", s.cfg.SendTimeout))
}

// Stop waits for workers to drain a closed queue. When ctx expires first the
// workers are canceled; an in-flight dispatch still completes.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Wait(ctx)
	if err == nil || ctx.Err() == nil {
		return err
	}
	s.log.Warn("dispatch stop deadline reached, abandoning queued ids", logx.Err(err))
	sup.Cancel()
	wctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()
	_ = sup.Wait(wctx)
	return err
}

func (s *Service) Snapshot() Snapshot {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	counts := make(map[Outcome]uint64, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	return Snapshot{
		Workers:  s.cfg.Workers,
		InFlight: int(s.inFlight.Load()),
		Counts:   counts,
		History:  append([]Result(nil), s.history...),
	}
}
