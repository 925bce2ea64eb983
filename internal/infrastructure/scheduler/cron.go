package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// CronScheduler runs a job on a standard five-field cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for spec evaluated in loc (UTC when nil).
func NewCronScheduler(spec string, loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, location: loc}
}

// Start registers job and begins ticking. Cancelling ctx stops the scheduler.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return nil
	}

	runner := cron.New(cron.WithLocation(c.location))
	id, err := runner.AddFunc(c.spec, func() {
		job(time.Now().In(c.location))
	})
	if err != nil {
		return fmt.Errorf("add cron job %q: %w", c.spec, err)
	}

	c.cron = runner
	c.entryID = id
	runner.Start()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			_ = c.Stop(context.Background())
		}()
	}

	return nil
}

// Next reports the next activation time, or zero when not started.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron == nil {
		return time.Time{}
	}
	return c.cron.Entry(c.entryID).Next
}

// Stop halts the scheduler and waits for a running job until ctx is done.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	select {
	case <-runner.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
