// Package app wires config, stores, and the scheduler into one process.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"reelpost/internal/account"
	"reelpost/internal/config"
	"reelpost/internal/control"
	"reelpost/internal/history"
	"reelpost/internal/media"
	"reelpost/internal/publisher"
	"reelpost/internal/schedule"
	"reelpost/internal/scheduler"
	"reelpost/internal/secret"
	"reelpost/internal/session"
	logx "reelpost/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service

	accounts  *account.Registry
	schedules *schedule.Store
	sessions  *session.Cache
	hist      history.Store

	sched *scheduler.Service
	ctl   *control.Control

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewApp loads the config and constructs every component.
// pub supplies the platform client; pass nil to use the logging stub.
func NewApp(cfgPath string, pub publisher.Publisher) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogSettings())
	log = log.With(logx.String("comp", "app"))

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	cipher, err := secret.Open(cfg.KeyPath())
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open key: %w", err)
	}

	accounts := account.NewRegistry(cfg.AccountsPath(), cipher, log.With(logx.String("comp", "accounts")))
	schedules := schedule.NewStore(cfg.SchedulePath(), cipher, log.With(logx.String("comp", "schedule")))
	if cfg.LegacyPlaintext {
		accounts.AllowLegacyPlaintext()
		schedules.AllowLegacyPlaintext()
		log.Warn("legacy plaintext migration enabled; disable after stores are rewritten")
	}

	sessions, err := session.OpenCache(cfg.SessionsDir(), log.With(logx.String("comp", "sessions")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open session cache: %w", err)
	}

	hc, err := cfg.HistorySettings()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	hist, err := history.Open(hc, log.With(logx.String("comp", "history")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	if hist != nil {
		log.Info("history enabled", logx.String("driver", hc.Driver))
	}

	if pub == nil {
		pub = &publisher.Stub{Log: log.With(logx.String("comp", "publisher"))}
	}

	sc, err := cfg.SchedulerSettings()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(sc, scheduler.Deps{
		Schedules: schedules,
		Accounts:  accounts,
		Sessions:  sessions,
		Media:     media.NewSelector(cfg.MediaDir(), log.With(logx.String("comp", "media"))),
		Publisher: pub,
		History:   hist,
	}, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		accounts:  accounts,
		schedules: schedules,
		sessions:  sessions,
		hist:      hist,
		sched:     sched,
		ctl:       control.New(accounts, schedules, sched),
	}, nil
}

// Control exposes the operator command surface.
func (a *App) Control() *control.Control { return a.ctl }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.runCancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	// hot reload: logging and scheduler tuning apply live; stores and
	// paths need a restart.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Autostart {
		a.sched.Start(ctx)
		a.log.Info("scheduler autostarted")
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(old, cfg *config.Config) {
	a.logs.Apply(cfg.LogSettings())

	sc, err := cfg.SchedulerSettings()
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	if old != nil && (old.Paths != cfg.Paths || old.History != cfg.History) {
		a.log.Warn("paths or history config changed; restart required for changes to take effect")
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a.sched.Stop(stopCtx)

	if a.runCancel != nil {
		a.runCancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not stop in time")
	}

	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.log.Warn("history close", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
