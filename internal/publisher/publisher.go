// Package publisher defines the boundary to the component that actually
// performs the publish action (in production, a browser-automation driver
// living outside this core).
package publisher

import (
	"context"
	"time"

	"reelpost/internal/session"
	"reelpost/pkg/logx"
)

// Request carries everything one publish attempt needs. Credential is the
// decrypted secret for the duration of this call only; the scheduler zeroes
// it once Publish returns.
type Request struct {
	MediaPaths []string
	Caption    string
	AccountID  string
	Credential []byte

	// Session is the cached auth state, nil or invalid when a full login
	// is required. Implementations perform the login themselves in that
	// case and may hand back refreshed state via Result.Session.
	Session *session.Session
}

// Result reports one attempt. Anticipated failures (missing UI elements,
// upstream timeouts) come back as OK=false with a Reason, not as an error;
// the error return is reserved for failures the implementation did not
// anticipate.
type Result struct {
	OK     bool
	Reason string

	// Session, when non-nil, is refreshed auth state the caller should
	// persist for the account.
	Session *session.Session
}

// Publisher performs the publish action for one account.
// Implementations own their interaction timeouts; the scheduler additionally
// bounds every call with a context deadline.
type Publisher interface {
	Publish(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to the Publisher interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Publish(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Stub is a Publisher that logs the request and reports success. It is the
// default wiring until a real driver is attached, and handy in tests.
type Stub struct {
	Log logx.Logger
}

func (s *Stub) Publish(_ context.Context, req Request) (Result, error) {
	if !s.Log.IsZero() {
		s.Log.Info("stub publish",
			logx.String("account", req.AccountID),
			logx.Int("media", len(req.MediaPaths)),
			logx.Bool("cached_session", session.Valid(req.Session, time.Now())))
	}
	return Result{OK: true}, nil
}
