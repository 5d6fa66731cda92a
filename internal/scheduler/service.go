package scheduler

import (
	"context"
	"math/rand"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"reelpost/internal/schedule"
	"reelpost/pkg/logx"
)

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{cfg: cfg, deps: deps, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply updates timing configuration at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg.withDefaults())
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			s.log.Warn("invalid timezone; using local", logx.String("tz", cfg.Timezone), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.loc = loc
	if cfg.AccountPacing > 0 {
		s.pacer = rate.NewLimiter(rate.Every(cfg.AccountPacing), 1)
	} else {
		s.pacer = nil
	}
}

// Status reports "running" or "stopped".
func (s *Service) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return "running"
	}
	return "stopped"
}

// NextActionTimes returns a copy of the pending time set, sorted ascending.
func (s *Service) NextActionTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.pending...)
}

// UpdateSchedule rebuilds the pending set from the schedule store. Valid
// whether or not the loop is running; a running loop picks the new set up
// on its next wake.
func (s *Service) UpdateSchedule() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeLocked(time.Now())
}

// recomputeLocked replaces (never appends to) the pending set, so stale
// times from a previous schedule cannot linger.
func (s *Service) recomputeLocked(now time.Time) error {
	sch, err := s.deps.Schedules.Load()
	if err != nil {
		return err
	}
	if sch == nil {
		s.pending = nil
		s.log.Warn("no schedule configured; nothing pending")
		return nil
	}
	next, err := schedule.NextTimesAfterFire(sch, now, s.lastFired, s.loc)
	if err != nil {
		return err
	}
	s.pending = next
	fields := []logx.Field{logx.String("policy", string(sch.Policy)), logx.Int("pending", len(next))}
	if len(next) > 0 {
		fields = append(fields, logx.Time("next", next[0]))
	}
	s.log.Info("next action times recomputed", fields...)
	return nil
}

// Start moves the service to Running and spawns the control loop.
// Idempotent when already running; if a Stop is in progress it waits for
// the old loop to finish first so two loops can never coexist.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// Already running.
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	if err := s.recomputeLocked(time.Now()); err != nil {
		// Not fatal: the loop retries on its next wake.
		s.log.Error("initial schedule load failed", logx.Err(err))
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler loop", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(runCtx, stopCh)
	}()
	s.log.Info("scheduler started", logx.Int("pending", len(s.pending)))
}

// Stop signals the loop and blocks until it has exited (or ctx runs out,
// in which case the shutdown continues in the background). An in-flight
// publish call is never preempted; it completes, bounded by the per-call
// publish timeout, before the loop can exit.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		start := time.Now()
		s.wg.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// loop wakes on a timer bounded by the poll band and the earliest pending
// time, fires due actions, and recomputes.
func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		timer := time.NewTimer(s.nextWait(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		s.onWake(ctx, stopCh, time.Now())
	}
}

// nextWait picks the sleep before the next wake: a randomized poll
// interval, shortened when a pending action is due sooner.
func (s *Service) nextWait(now time.Time) time.Duration {
	s.mu.Lock()
	cfg := s.cfg
	var next time.Time
	if len(s.pending) > 0 {
		next = s.pending[0]
	}
	s.mu.Unlock()

	wait := cfg.PollMin
	if band := cfg.PollMax - cfg.PollMin; band > 0 {
		wait += time.Duration(rand.Int63n(int64(band)))
	}
	if !next.IsZero() {
		if until := next.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Service) onWake(ctx context.Context, stopCh <-chan struct{}, now time.Time) {
	s.mu.Lock()
	due := len(s.pending) > 0 && !s.pending[0].After(now)
	cfg := s.cfg
	s.mu.Unlock()
	if !due {
		return
	}

	sch, err := s.deps.Schedules.Load()
	if err != nil {
		// Logged and retried on the next wake; a persistence failure must
		// not kill the loop.
		s.log.Error("schedule load failed", logx.Err(err))
		return
	}
	if sch == nil {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		return
	}

	// Daily policies get an unpredictable pre-fire delay so the observable
	// action time never sits exactly on the configured clock value.
	if sch.Policy != schedule.PolicyInterval && cfg.JitterMax > 0 {
		d := time.Duration(rand.Int63n(int64(cfg.JitterMax)))
		s.log.Info("delaying fire by jitter", logx.Duration("jitter", d))
		jt := time.NewTimer(d)
		select {
		case <-ctx.Done():
			jt.Stop()
			return
		case <-stopCh:
			jt.Stop()
			return
		case <-jt.C:
		}
	}

	fired := time.Now()
	s.runCycle(ctx, sch.Accounts, sch.Caption)

	s.mu.Lock()
	s.lastFired = fired
	if err := s.recomputeLocked(time.Now()); err != nil {
		s.log.Error("recompute after fire failed", logx.Err(err))
	}
	s.mu.Unlock()
}
