package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sshmcp/util"
)

// Reaper periodically evicts sessions idle for longer than a threshold.
// The sweep runs every idle/2 on a cron scheduler (cron rounds
// intervals below one second up to one second).
type Reaper struct {
	manager *Manager
	idle    time.Duration
	logger  *util.Logger
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReaper returns a stopped reaper for m.
func NewReaper(m *Manager, idle time.Duration, logger *util.Logger) *Reaper {
	return &Reaper{manager: m, idle: idle, logger: logger, now: time.Now}
}

// Start schedules the sweep.  Calling Start on a running reaper is a
// no-op.
func (r *Reaper) Start() error {
	if r.idle <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %v", r.idle)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	clog := cron.PrintfLogger(r.logger)
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(cron.Every(r.idle/2), cron.FuncJob(func() { r.Sweep() }))
	c.Start()
	r.cron = c

	r.logger.Verbose("reaper: sweeping every %v, idle timeout %v", r.idle/2, r.idle)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Sweep evicts idle sessions once, now.
func (r *Reaper) Sweep() []string {
	reaped := r.manager.Reap(r.now(), r.idle)
	if len(reaped) > 0 {
		r.logger.Info("reaper: evicted %d idle session(s)", len(reaped))
	}
	return reaped
}
