// Package control is the operator-facing command surface: the minimal set
// of operations any front end (CLI, HTTP, chat) binds to. It owns no state
// of its own; every command delegates to the injected stores and scheduler.
package control

import (
	"context"
	"sort"
	"time"

	"reelpost/internal/account"
	"reelpost/internal/schedule"
	"reelpost/internal/scheduler"
)

// AccountInfo is the operator view of one account. The credential itself
// is never exposed here.
type AccountInfo struct {
	ID             string `json:"id"`
	PublishEnabled bool   `json:"publish_enabled"`
}

// Control wires operator commands to the core subsystems.
type Control struct {
	accounts  *account.Registry
	schedules *schedule.Store
	sched     *scheduler.Service
}

func New(accounts *account.Registry, schedules *schedule.Store, sched *scheduler.Service) *Control {
	return &Control{accounts: accounts, schedules: schedules, sched: sched}
}

// ListAccounts returns every account, sorted by id, without credentials.
func (c *Control) ListAccounts() ([]AccountInfo, error) {
	all, err := c.accounts.List()
	if err != nil {
		return nil, err
	}
	out := make([]AccountInfo, 0, len(all))
	for _, a := range all {
		out = append(out, AccountInfo{ID: a.ID, PublishEnabled: a.PublishEnabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Control) UpsertAccount(id string, credential []byte, publishEnabled bool) error {
	return c.accounts.Upsert(id, credential, publishEnabled)
}

func (c *Control) UpdateAccount(id string, p account.Patch) error {
	return c.accounts.Update(id, p)
}

func (c *Control) DeleteAccount(id string) error {
	return c.accounts.Delete(id)
}

// GetSchedule returns the active schedule, or nil when none is set.
func (c *Control) GetSchedule() (*schedule.Schedule, error) {
	return c.schedules.Load()
}

// SetSchedule validates and persists a full replacement schedule, then
// makes the scheduler recompute its pending times immediately.
func (c *Control) SetSchedule(s *schedule.Schedule) error {
	if err := c.schedules.Save(s); err != nil {
		return err
	}
	return c.sched.UpdateSchedule()
}

func (c *Control) StartScheduler(ctx context.Context) { c.sched.Start(ctx) }
func (c *Control) StopScheduler(ctx context.Context)  { c.sched.Stop(ctx) }
func (c *Control) SchedulerStatus() string            { return c.sched.Status() }

// NextActionTimes returns the scheduler's pending times, soonest first.
func (c *Control) NextActionTimes() []time.Time { return c.sched.NextActionTimes() }

// PublishNow runs one immediate publish cycle outside the schedule.
func (c *Control) PublishNow(ctx context.Context, accounts []string, caption string) []scheduler.Outcome {
	return c.sched.PublishNow(ctx, accounts, caption)
}
