package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser matches the teacher's dual standard/extended cron grammar:
// the usual five fields, an optional leading seconds field, and
// descriptors ("@hourly", "@daily", ...).
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduledFlow binds a named Flow descriptor to a cron trigger. It
// supplements the on-demand Enqueue path of §4.11 with a recurring one:
// a scheduled flow still dispatches through the same queue/whitelist
// path, producing an ordinary Job row each time it fires.
type ScheduledFlow struct {
	Name     string
	Cron     string
	Flow     FlowDescriptor
	LastRun  *time.Time
	NextRun  *time.Time

	schedule cron.Schedule
}

// NewScheduledFlow validates the cron expression and computes the first
// NextRun relative to now.
func NewScheduledFlow(name, expr string, desc FlowDescriptor, now time.Time) (*ScheduledFlow, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("queue: invalid cron expression %q: %w", expr, err)
	}
	next := sched.Next(now)
	return &ScheduledFlow{Name: name, Cron: expr, Flow: desc, NextRun: &next, schedule: sched}, nil
}

// CronScheduler ticks a set of ScheduledFlows and enqueues a Job for each
// one due, grounded on the teacher's poll-and-acquire scheduler loop but
// simplified to single-process use (no distributed lock, per the
// non-clustered scope this engine targets).
type CronScheduler struct {
	Store        *Store
	PollInterval time.Duration
	Logger       *slog.Logger

	mu    sync.Mutex
	flows []*ScheduledFlow
}

// NewCronScheduler constructs a CronScheduler polling every 10 seconds by
// default, matching the teacher's scheduler default.
func NewCronScheduler(store *Store) *CronScheduler {
	return &CronScheduler{Store: store, PollInterval: 10 * time.Second, Logger: slog.Default()}
}

// Add registers a ScheduledFlow to be ticked.
func (cs *CronScheduler) Add(sf *ScheduledFlow) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.flows = append(cs.flows, sf)
}

// Run ticks every PollInterval until ctx is cancelled, enqueueing a Job
// for each ScheduledFlow whose NextRun has elapsed.
func (cs *CronScheduler) Run(ctx context.Context) error {
	interval := cs.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cs.tick(ctx, time.Now().UTC())
		}
	}
}

func (cs *CronScheduler) tick(ctx context.Context, now time.Time) {
	cs.mu.Lock()
	due := make([]*ScheduledFlow, 0)
	for _, sf := range cs.flows {
		if sf.NextRun != nil && !sf.NextRun.After(now) {
			due = append(due, sf)
		}
	}
	cs.mu.Unlock()

	for _, sf := range due {
		if _, err := cs.Store.Enqueue(ctx, KindFlow, sf.Flow); err != nil {
			cs.Logger.Error("queue: scheduled flow enqueue failed", "flow", sf.Name, "error", err)
			continue
		}
		cs.mu.Lock()
		last := now
		sf.LastRun = &last
		next := sf.schedule.Next(now)
		sf.NextRun = &next
		cs.mu.Unlock()
	}
}
