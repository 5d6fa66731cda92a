package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reelpost/internal/account"
	"reelpost/internal/history"
	"reelpost/internal/publisher"
	"reelpost/internal/secret"
	"reelpost/internal/session"
	"reelpost/pkg/logx"
)

// PublishNow runs one immediate cycle for the given accounts, outside the
// schedule. The pending time set is left untouched.
func (s *Service) PublishNow(ctx context.Context, accounts []string, caption string) []Outcome {
	return s.runCycle(ctx, accounts, caption)
}

// runCycle attempts one publish per eligible target account, sequentially.
// A single account's failure is recorded and the cycle continues; only ctx
// cancellation abandons the remaining accounts.
func (s *Service) runCycle(ctx context.Context, targets []string, caption string) []Outcome {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycle := uuid.NewString()
	clog := s.log.With(logx.String("cycle", cycle))
	clog.Info("publish cycle starting", logx.Int("targets", len(targets)))

	all, err := s.deps.Accounts.List()
	if err != nil {
		clog.Error("account registry read failed", logx.Err(err))
		out := make([]Outcome, 0, len(targets))
		for _, id := range targets {
			out = append(out, Outcome{Account: id, Reason: "registry unavailable"})
		}
		return out
	}
	// Bound plaintext credential lifetime to this cycle.
	defer func() {
		for _, a := range all {
			secret.Zero(a.Credential)
		}
	}()

	s.mu.Lock()
	cfg := s.cfg
	pacer := s.pacer
	s.mu.Unlock()

	var outcomes []Outcome
	for i, id := range targets {
		if ctx.Err() != nil {
			clog.Warn("cycle abandoned", logx.Int("remaining", len(targets)-i))
			break
		}
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				clog.Warn("cycle abandoned during pacing", logx.Int("remaining", len(targets)-i))
				break
			}
		}

		o := s.publishOne(ctx, cfg, cycle, id, caption, all)
		outcomes = append(outcomes, o)
	}

	ok := 0
	for _, o := range outcomes {
		if o.OK {
			ok++
		}
	}
	clog.Info("publish cycle finished", logx.Int("ok", ok), logx.Int("failed", len(outcomes)-ok))
	return outcomes
}

func (s *Service) publishOne(ctx context.Context, cfg Config, cycle, id, caption string, all map[string]account.Account) Outcome {
	alog := s.log.With(logx.String("cycle", cycle), logx.String("account", id))

	a, ok := all[id]
	if !ok {
		alog.Error("target account not in registry")
		return s.record(cycle, id, 0, 0, Outcome{Account: id, Reason: "account not found"})
	}
	if !a.PublishEnabled {
		alog.Info("publishing disabled for account; skipping")
		return Outcome{Account: id, OK: true, Reason: "publishing disabled"}
	}

	paths, err := s.deps.Media.Pick(cfg.MediaPerPost)
	if err != nil {
		alog.Error("media selection failed", logx.Err(err))
		return s.record(cycle, id, 0, 0, Outcome{Account: id, Reason: "media selection failed"})
	}
	if len(paths) < cfg.MediaPerPost {
		alog.Warn("not enough media in pool; skipping account",
			logx.Int("available", len(paths)), logx.Int("needed", cfg.MediaPerPost))
		return s.record(cycle, id, len(paths), 0, Outcome{Account: id, Reason: "not enough media"})
	}

	sess := s.loadSession(id, alog)

	start := time.Now()
	cred := append([]byte(nil), a.Credential...)
	// The publish context is detached from the loop's context on purpose:
	// Stop() never preempts an in-flight publish, it waits it out. The
	// call-level timeout is what bounds a hung publisher.
	pctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
	res, err := s.deps.Publisher.Publish(pctx, publisher.Request{
		MediaPaths: paths,
		Caption:    caption,
		AccountID:  id,
		Credential: cred,
		Session:    sess,
	})
	cancel()
	secret.Zero(cred)
	took := time.Since(start)

	if res.Session != nil {
		if err := s.deps.Sessions.Save(id, res.Session); err != nil {
			alog.Warn("session refresh not persisted", logx.Err(err))
		}
	}

	switch {
	case err != nil:
		alog.Error("publish failed", logx.Err(err), logx.Duration("took", took))
		return s.record(cycle, id, len(paths), took, Outcome{Account: id, Reason: err.Error()})
	case !res.OK:
		alog.Error("publish rejected", logx.String("reason", res.Reason), logx.Duration("took", took))
		return s.record(cycle, id, len(paths), took, Outcome{Account: id, Reason: res.Reason})
	default:
		alog.Info("publish succeeded", logx.Int("media", len(paths)), logx.Duration("took", took))
		return s.record(cycle, id, len(paths), took, Outcome{Account: id, OK: true})
	}
}

// loadSession fetches the cached session, discarding expired or unreadable
// state so the publisher performs a fresh login.
func (s *Service) loadSession(id string, alog logx.Logger) *session.Session {
	sess, err := s.deps.Sessions.Load(id)
	if err != nil {
		// An unreadable session has no recovery path (the cache manages its
		// own key), so drop the file instead of re-warning every cycle.
		alog.Warn("session unreadable; discarding and forcing fresh login", logx.Err(err))
		if derr := s.deps.Sessions.Delete(id); derr != nil {
			alog.Warn("unreadable session delete failed", logx.Err(derr))
		}
		return nil
	}
	if sess != nil && !session.Valid(sess, time.Now()) {
		alog.Debug("cached session expired; discarding")
		if err := s.deps.Sessions.Delete(id); err != nil {
			alog.Warn("expired session delete failed", logx.Err(err))
		}
		return nil
	}
	return sess
}

// record persists the outcome to the history store (when configured) and
// passes it through.
func (s *Service) record(cycle, id string, mediaCount int, took time.Duration, o Outcome) Outcome {
	if s.deps.History == nil {
		return o
	}
	e := history.Entry{
		At:         time.Now(),
		Cycle:      cycle,
		Account:    id,
		MediaCount: mediaCount,
		OK:         o.OK,
		Reason:     o.Reason,
		TookMS:     took.Milliseconds(),
	}
	hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.History.Append(hctx, e); err != nil {
		s.log.Warn("history append failed", logx.Err(err))
	}
	return o
}
