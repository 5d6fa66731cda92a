package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reelpost/internal/account"
	"reelpost/internal/history"
	"reelpost/internal/media"
	"reelpost/internal/publisher"
	"reelpost/internal/schedule"
	"reelpost/internal/session"
	"reelpost/pkg/logx"
)

// Config controls the scheduler's timing behaviour.
type Config struct {
	// PollMin/PollMax bound the randomized wake interval of the control
	// loop. Randomizing inside the band avoids lock-step drift against
	// other periodic work on the host.
	PollMin time.Duration
	PollMax time.Duration

	// JitterMax caps the random delay added before firing under the
	// fixed-times and random-window policies.
	JitterMax time.Duration

	// MediaPerPost is how many media files one publish resolves.
	MediaPerPost int

	// PublishTimeout bounds every Publisher call.
	PublishTimeout time.Duration

	// AccountPacing is the minimum delay between two account publishes
	// within one cycle.
	AccountPacing time.Duration

	// Timezone is the IANA zone the daily policies are evaluated in.
	// Empty means the host's local zone.
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.PollMin <= 0 {
		c.PollMin = 30 * time.Second
	}
	if c.PollMax < c.PollMin {
		c.PollMax = 3 * c.PollMin
	}
	if c.JitterMax < 0 {
		c.JitterMax = 0
	}
	if c.MediaPerPost <= 0 {
		c.MediaPerPost = 3
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Minute
	}
	return c
}

// Deps are the collaborators the scheduler coordinates. All are injected;
// the service owns none of their lifecycles.
type Deps struct {
	Schedules *schedule.Store
	Accounts  *account.Registry
	Sessions  *session.Cache
	Media     *media.Selector
	Publisher publisher.Publisher
	History   history.Store // nil disables the audit trail
}

// Outcome reports one account's result within a cycle.
type Outcome struct {
	Account string
	OK      bool
	Reason  string
}

// Service is the scheduling state machine. Zero value is not usable;
// construct with New.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  logx.Logger
	loc  *time.Location

	// pending is the next-action-time set, sorted ascending. Rebuilt from
	// the schedule store on Start, on UpdateSchedule, and after every fire.
	pending []time.Time

	// lastFired is when the loop last fired a scheduled cycle. Recomputes
	// feed it to the policy math so the random-window policy cannot draw a
	// second instant from the same day's window.
	lastFired time.Time

	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed once
	// the loop goroutine has fully exited.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// cycleMu serializes publish cycles so a manual PublishNow can never
	// overlap a loop-triggered cycle for the same accounts.
	cycleMu sync.Mutex
	pacer   *rate.Limiter
}
