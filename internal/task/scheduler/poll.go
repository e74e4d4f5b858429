package scheduler

import (
	"context"
	"errors"
	"time"

	"noticer/internal/eventbus"
	"noticer/internal/task/queue"
	logx "noticer/pkg/logx"
)

const storeWarnThrottle = time.Minute

// Poll runs one cycle: list the tasks, evaluate each against the current
// instant and push the due ids in store order, stamped with that instant. It returns the ids pushed.
func (s *Service) Poll(ctx context.Context) ([]int64, error) {
	started := time.Now()
	now := s.now().In(s.Location())

	tasks, err := s.store.List(ctx)
	if err != nil {
		s.recordCycle(now, 0, nil, time.Since(started), err)
		s.reportStoreError(err)
		s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerStoreFailed, Data: CycleEvent{At: now, Took: time.Since(started), Error: err.Error()}})
		return nil, err
	}

	due := make([]int64, 0, 4)
	for i := range tasks {
		if tasks[i].IsDue(now) {
			due = append(due, tasks[i].ID)
		}
	}
	if err := s.q.PushAt(now, due...); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			s.log.Debug("queue closed, dropping due ids", logx.Int("due", len(due)))
		}
		s.recordCycle(now, len(tasks), nil, time.Since(started), err)
		return nil, err
	}

	took := time.Since(started)
	s.recordCycle(now, len(tasks), due, took, nil)
	if len(due) > 0 {
		s.log.Debug("due tasks emitted", logx.Any("ids", due), logx.Int("tasks", len(tasks)), logx.Duration("took", took))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerCycle, Data: CycleEvent{At: now, Tasks: len(tasks), Due: due, Took: took}})
	return due, nil
}

func (s *Service) recordCycle(at time.Time, tasks int, due []int64, took time.Duration, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Cycles++
	s.stats.LastCycleAt = at
	if err != nil {
		s.stats.Failures++
		s.stats.LastErr = err.Error()
		return
	}
	s.stats.LastErr = ""
	s.stats.LastDue = due
	s.stats.Emitted += uint64(len(due))
}

// reportStoreError logs at most one warning per storeWarnThrottle; the rest
// go to debug. An outage must not flood the log.
func (s *Service) reportStoreError(err error) {
	now := time.Now()
	s.warnMu.Lock()
	loud := s.lastWarn.IsZero() || now.Sub(s.lastWarn) >= storeWarnThrottle
	if loud {
		s.lastWarn = now
	}
	s.warnMu.Unlock()

	if loud {
		s.log.Warn("task list failed, retrying next cycle", logx.Err(err))
		return
	}
	s.log.Debug("task list failed", logx.Err(err))
}
