package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

// maintenanceWindow is how long the window for time-insensitive jobs
// stays open once it starts.
const maintenanceWindow = 4 * time.Hour

// reservationTTL is how long a reservation blocks other runs of an entry.
// Older reservations are left behind by crashed runs and are taken over.
const reservationTTL = 12 * time.Hour

// Summary counts what a single RunDue pass did.
type Summary struct {
	Ran     int
	Skipped int
}

// Dispatcher periodically runs the due entries of the job list.
type Dispatcher struct {
	entries EntryStore
	cfg     model.JobsConfig
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDispatcher creates a Dispatcher over the given job list.
func NewDispatcher(entries EntryStore, cfg model.JobsConfig, logger *slog.Logger) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Dispatcher{
		entries: entries,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(map[string]Job),
	}
}

// Register adds a job implementation. A later registration for the same
// kind replaces the earlier one.
func (d *Dispatcher) Register(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[job.Kind()] = job
}

func (d *Dispatcher) lookup(kind string) (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[kind]
	return job, ok
}

// RunDue runs every entry whose interval has elapsed at now and waits for
// them to finish. Entries with an undecodable argument are pruned. Only a
// failure to read the job list is returned.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time) (Summary, error) {
	entries, err := d.entries.ListJobs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("loading job list: %w", err)
	}

	var summary Summary
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.cfg.MaxConcurrent)

	for _, entry := range entries {
		if entry.ArgumentErr != nil {
			d.logger.Warn("removing job entry with invalid argument",
				"kind", entry.Kind, "entry_id", entry.ID, "error", entry.ArgumentErr)
			if err := d.entries.RemoveJobByID(ctx, entry.ID); err != nil {
				d.logger.Error("could not remove job entry", "entry_id", entry.ID, "error", err)
			}
			summary.Skipped++
			continue
		}

		job, ok := d.lookup(entry.Kind)
		if !ok {
			d.logger.Warn("unknown job kind", "kind", entry.Kind, "entry_id", entry.ID)
			summary.Skipped++
			continue
		}

		if !entry.LastRun.IsZero() && now.Before(entry.LastRun.Add(job.Interval())) {
			summary.Skipped++
			continue
		}

		if !job.TimeSensitive() && !d.inMaintenanceWindow(now) {
			summary.Skipped++
			continue
		}

		reserved, err := d.entries.ReserveJob(ctx, entry.ID, now, reservationTTL)
		if err != nil {
			d.logger.Error("could not reserve job entry", "entry_id", entry.ID, "error", err)
			summary.Skipped++
			continue
		}
		if !reserved {
			d.logger.Debug("job entry is reserved by another run", "entry_id", entry.ID)
			summary.Skipped++
			continue
		}

		summary.Ran++
		wg.Add(1)
		sem <- struct{}{}
		go func(job Job, entry model.JobListEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			d.safeRun(ctx, job, entry.Argument)
			if err := d.entries.ReleaseJob(context.WithoutCancel(ctx), entry.ID); err != nil {
				d.logger.Error("could not release job entry", "entry_id", entry.ID, "error", err)
			}
		}(job, entry)
	}

	wg.Wait()
	return summary, nil
}

// RunNow runs a single job immediately, ignoring its schedule.
func (d *Dispatcher) RunNow(ctx context.Context, kind string, arg model.JobArgument) (Outcome, error) {
	job, ok := d.lookup(kind)
	if !ok {
		return OutcomeFailed, fmt.Errorf("unknown job kind %q", kind)
	}
	return d.safeRun(ctx, job, arg), nil
}

// safeRun runs job and contains any panic it raises.
func (d *Dispatcher) safeRun(ctx context.Context, job Job, arg model.JobArgument) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked",
				"kind", job.Kind(),
				"account_id", arg.AccountID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			outcome = OutcomeFailed
		}
		d.logger.Info("job finished",
			"kind", job.Kind(),
			"account_id", arg.AccountID,
			"outcome", outcome.String(),
			"duration", time.Since(start),
		)
	}()
	return job.Run(ctx, arg)
}

// inMaintenanceWindow reports whether now falls into the configured
// window. Without a window every time qualifies.
func (d *Dispatcher) inMaintenanceWindow(now time.Time) bool {
	startHour := d.cfg.MaintenanceWindowStart
	if startHour < 0 {
		return true
	}

	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), startHour, 0, 0, 0, time.UTC)
	if now.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return now.Sub(start) < maintenanceWindow
}

// Start launches the dispatch loop. The first pass runs immediately;
// later passes run every jobs.tick_sec until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	interval := time.Duration(d.cfg.TickSec) * time.Second
	if interval <= 0 {
		interval = 300 * time.Second
	}

	go d.loop(ctx, interval, d.stopCh, d.doneCh)
}

// Stop halts the dispatch loop and waits for the running pass to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	done := d.doneCh
	d.mu.Unlock()

	<-done
}

func (d *Dispatcher) loop(ctx context.Context, interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.tick(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	summary, err := d.RunDue(ctx, time.Now())
	if err != nil {
		d.logger.Error("dispatch pass failed", "error", err)
		return
	}
	d.logger.Debug("dispatch pass finished", "ran", summary.Ran, "skipped", summary.Skipped)
}
