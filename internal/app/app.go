package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"noticer/internal/config"
	"noticer/internal/eventbus"
	"noticer/internal/executor"
	"noticer/internal/notifier"
	rtsup "noticer/internal/runtime/supervisor"
	"noticer/internal/storage"
	"noticer/internal/task/dispatch"
	"noticer/internal/task/scheduler"
	"noticer/internal/transport"
	logx "noticer/pkg/logx"
)

// Options locate the config file and an optional .env file.
type Options struct {
	ConfigPath string
	EnvPath    string
}

// App wires the scheduler, dispatch loop, executors and notifier around one
// task store.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	notif *notifier.Service
	exec  *executor.Manager
	sched *scheduler.Service
	disp  *dispatch.Service

	sendTimeout time.Duration
	stopOnce    sync.Once
}

// New loads config, opens the store, seeds tasks and builds every component.
// Nothing runs until Start.
func New(ctx context.Context, opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvPath); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
	}

	logSvc, log := logx.NewService(mapLoggingConfig(cfg))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a, err := build(ctx, cfg, st, logSvc, log, bus)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, st storage.Store, logSvc *logx.Service, log logx.Logger, bus eventbus.Bus) (*App, error) {
	byName, err := seedTasks(ctx, st, cfg.Tasks, log.With(logx.String("comp", "seed")))
	if err != nil {
		return nil, err
	}

	tcfg, err := mapTransportConfig(cfg)
	if err != nil {
		return nil, err
	}
	tr, err := transport.Open(tcfg, log)
	if err != nil {
		return nil, fmt.Errorf("notifier transport: %w", err)
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, tr, log.With(logx.String("comp", "notifier")), bus)
	// The chat sink posts straight to the transport so notifier warnings are
	// never mirrored back through the notifier.
	logSvc.SetSink(tr)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, st, log.With(logx.String("comp", "scheduler")), bus)

	exec := executor.NewManager(notif, log.With(logx.String("comp", "executor")), executor.WithLocation(sched.Location()))
	if wb := cfg.Executors.WaterBot; wb != nil {
		id, err := registerWaterBot(exec, wb, byName)
		if err != nil {
			return nil, err
		}
		log.Info("waterbot registered", logx.TaskID(id))
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, st, exec, log.With(logx.String("comp", "dispatch")), bus, dispatch.WithLocation(sched.Location))

	return &App{
		log:         log.With(logx.String("comp", "app")),
		logs:        logSvc,
		bus:         bus,
		store:       st,
		notif:       notif,
		exec:        exec,
		sched:       sched,
		disp:        disp,
		sendTimeout: dcfg.SendTimeout,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	// Scheduler and workers are stopped explicitly in Stop so the queue can
	// drain after the caller's context is canceled.
	runCtx := context.WithoutCancel(ctx)
	if err := a.exec.Start(runCtx); err != nil {
		return err
	}
	a.disp.Start(runCtx, a.sched.Queue())
	a.sched.Start(runCtx)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if every := watchdogInterval(a.log); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { runWatchdog(c, every, a.log) })
	}
	sdNotify(a.log, daemon.SdNotifyReady)

	a.log.Info("app started")
	return nil
}

// validateReload rejects a reloaded config whose components cannot be
// built. Delivery secrets are checked by constructing the transport.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	var errs []error
	if _, err := mapSchedulerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	tcfg, err := mapTransportConfig(cfg)
	if err != nil {
		errs = append(errs, err)
	} else if config.TransportChanged(a.cfgm.Get(), cfg) {
		if _, err := transport.Open(tcfg, a.log); err != nil {
			errs = append(errs, fmt.Errorf("notifier transport: %w", err))
		}
	}
	return errors.Join(errs...)
}

// applyReload fans a committed config out to the live components. Storage,
// dispatch, executors and seed tasks are read once at startup.
func (a *App) applyReload(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLoggingConfig(next))
	}

	if slices.Contains(sections, "scheduler") {
		sc, err := mapSchedulerConfig(next)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			if sc.Enabled != a.sched.Enabled() {
				a.log.Warn("scheduler.enabled changed; restart required")
				sc.Enabled = a.sched.Enabled()
			}
			if sc.Timezone != strings.TrimSpace(prev.Scheduler.Timezone) {
				a.log.Warn("scheduler.timezone changed; executor reset jobs keep the old zone until restart")
			}
			a.sched.Apply(sc)
		}
	}

	if slices.Contains(sections, "notifier") {
		a.reloadNotifier(prev, next)
	}

	var restart []string
	for _, s := range sections {
		switch s {
		case "storage", "dispatch", "tasks":
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required", logx.String("sections", strings.Join(restart, ",")))
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) reloadNotifier(prev, next *config.Config) {
	ncfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	a.notif.Apply(ncfg)

	if !config.TransportChanged(prev, next) {
		return
	}
	tcfg, err := mapTransportConfig(next)
	if err != nil {
		a.log.Warn("invalid transport config; keeping previous", logx.Err(err))
		return
	}
	tr, err := transport.Open(tcfg, a.log)
	if err != nil {
		a.log.Warn("transport rebuild failed; keeping previous", logx.Err(err))
		return
	}
	a.notif.SetTransport(tr)
	a.logs.SetSink(tr)
	a.log.Info("notifier transport replaced", logx.String("transport", tr.Name()))
}

// Stop shuts down in dependency order: the scheduler stops emitting and
// closes the queue, dispatch drains it, then the executors and store close.
// An app that never started only releases the store and log outputs.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() {
		if a.sup == nil {
			err = a.store.Close()
			_ = a.logs.Close()
			return
		}
		a.stop(ctx, reason)
	})
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	// Config watch, reload and event logging unwind immediately.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "dispatch", a.sendTimeout+2*time.Second, a.disp.Stop)
	a.step(ctx, "executor", time.Second, func(c context.Context) error { a.exec.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	if n := a.bus.Dropped(); n > 0 {
		a.log.Debug("event deliveries dropped", logx.Uint64("count", n))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

// step runs one shutdown stage bounded by max and the caller's deadline, so
// one component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
