// Package scheduler periodically refreshes the timetables of a fixed set of
// users on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "edtassist/internal/log"
)

// RefreshFunc refreshes one user's timetable.
type RefreshFunc func(ctx context.Context, userID string) error

// Scheduler runs RefreshFunc for every configured user on each tick.
type Scheduler struct {
	spec    string
	users   []string
	refresh RefreshFunc

	cron *cron.Cron
	mu   sync.Mutex // one run at a time
}

// New validates spec (standard five-field cron syntax or a descriptor such
// as "@hourly") and returns a stopped scheduler.
func New(spec string, users []string, refresh RefreshFunc) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	if refresh == nil {
		return nil, fmt.Errorf("refresh function is nil")
	}
	return &Scheduler{
		spec:    spec,
		users:   append([]string(nil), users...),
		refresh: refresh,
	}, nil
}

// Start schedules runs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec, "users", len(s.users))
	return nil
}

// Stop halts scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// RunOnce refreshes every user sequentially. A failing user is logged and
// does not stop the others. It returns the number of successful refreshes.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := 0
	for _, u := range s.users {
		if ctx.Err() != nil {
			break
		}
		if err := s.refresh(ctx, u); err != nil {
			appLog.Error("scheduled refresh failed", err, "user", u)
			continue
		}
		ok++
	}
	appLog.Info("scheduled refresh done", "users", len(s.users), "ok", ok)
	return ok
}
