// Package scheduler drives the publish loop: it derives future action
// times from the active schedule, sleeps until one is due, runs a publish
// cycle across the schedule's target accounts, and recomputes.
//
// # Policies
//
// Three policies derive the pending time set (see internal/schedule):
// up to three fixed daily times, a rolling interval measured from the
// last fire, and a once-per-day random instant inside a configured
// window. Fixed-time and random-window fires are additionally delayed by
// a random jitter so the externally observable action times never sit
// exactly on a clock pattern.
//
// # Lifecycle
//
// The service moves between Stopped and Running. Start is idempotent and
// waits out an in-progress Stop; Stop signals the loop and blocks until
// the loop goroutine has exited, which means an in-flight publish call is
// allowed to finish (bounded by the per-call publish timeout) before Stop
// returns. UpdateSchedule is valid in either state and rebuilds the whole
// pending set from the schedule store.
//
// # Failure model
//
// One account's publish failure is recorded and the cycle moves on to the
// next account. Store I/O failures inside the loop are logged and retried
// on the next wake; nothing short of Stop terminates the loop.
package scheduler
