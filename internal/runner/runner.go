// Package runner polls the job store for due delayed sends and executes them.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/concurrency"
	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/logger"

	"github.com/robfig/cron/v3"
)

type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]jobs.Job, error)
}

type JobExecutor interface {
	ValidateAndExecute(ctx context.Context, jobID string) autosend.Outcome
}

type Runner struct {
	lister DueLister
	exec   JobExecutor
	now    func() time.Time

	schedule             cron.Schedule
	spec                 string
	batchSize            int
	concurrency          int
	jobTimeout           time.Duration
	shutdownTimeout      time.Duration
	inFlightPollInterval time.Duration

	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	cron     *cron.Cron
	running  bool
	inFlight map[string]struct{}
	lastErr  error
}

func New(lister DueLister, exec JobExecutor, cfg config.RunnerConfig) (*Runner, error) {
	spec := cfg.Schedule
	if spec == "" {
		spec = config.DefaultRunnerSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse runner schedule %q: %w", spec, err)
	}

	jobTimeout, err := config.DurationOrDefault(cfg.JobTimeout, config.DefaultRunnerJobTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse runner job timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultRunnerShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse runner shutdown timeout: %w", err)
	}
	pollInterval, err := config.DurationOrDefault(cfg.InFlightPollInterval, config.DefaultRunnerInFlightPollInterval)
	if err != nil {
		return nil, fmt.Errorf("parse runner in-flight poll interval: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultRunnerBatchSize
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = config.DefaultRunnerConcurrency
	}

	return &Runner{
		lister:               lister,
		exec:                 exec,
		now:                  time.Now,
		schedule:             schedule,
		spec:                 spec,
		batchSize:            batchSize,
		concurrency:          workers,
		jobTimeout:           jobTimeout,
		shutdownTimeout:      shutdownTimeout,
		inFlightPollInterval: pollInterval,
		inFlight:             make(map[string]struct{}),
	}, nil
}

func (r *Runner) Init(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	slog.Info("Runner initialized", "schedule", r.spec, "batch_size", r.batchSize, "concurrency", r.concurrency)
	return nil
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if r.ctx == nil {
		return apperrors.Internal("runner not initialized")
	}

	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.Tick(r.ctx); err != nil {
			slog.Error("Runner tick failed", "error", err)
		}
	}))
	r.cron.Start()
	r.running = true

	slog.Info("Runner started")
	return nil
}

// Stop halts the schedule, waits for in-flight jobs up to the shutdown
// timeout and then cancels whatever is left.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	cronDone := c.Stop()
	defer r.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		r.waitForInFlight()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Runner stopped gracefully")
		return nil
	case <-time.After(r.shutdownTimeout):
		slog.Warn("Runner shutdown timeout, cancelling in-flight jobs", "in_flight", r.InFlight())
		return apperrors.Internal("runner shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Health(ctx context.Context) error {
	if r.ctx == nil {
		return apperrors.Internal("runner not initialized")
	}
	if !r.IsRunning() {
		return apperrors.Internal("runner not running")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return fmt.Errorf("last tick: %w", r.lastErr)
	}
	return nil
}

func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Runner) InFlight() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inFlight)
}

// Tick executes one batch of due jobs with bounded concurrency and returns
// how many it started. Jobs already in flight from an earlier tick are
// skipped.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.lister.ListDue(ctx, now, r.batchSize)

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	started := 0

	for _, job := range due {
		if !r.track(job.ID) {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			r.untrack(job.ID)
			wg.Wait()
			return started, ctx.Err()
		}

		started++
		wg.Add(1)
		concurrency.SafeGo(ctx, "runner:"+job.ID, func() {
			defer func() {
				r.untrack(job.ID)
				<-sem
				wg.Done()
			}()
			r.execute(ctx, job)
		}, nil)
	}

	wg.Wait()
	if started > 0 {
		slog.Debug("Runner tick done", "due", len(due), "started", started)
	}
	return started, nil
}

func (r *Runner) execute(ctx context.Context, job jobs.Job) {
	ctx = logger.WithLeadID(logger.EnsureTraceID(ctx), job.LeadID)
	ctx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	report := autosend.NewReport(r.exec.ValidateAndExecute(ctx, job.ID))
	attrs := append(logger.Attrs(ctx), "job_id", job.ID, "action", report.Action, "reason", report.Reason)
	slog.InfoContext(ctx, "Job processed", attrs...)
}

func (r *Runner) track(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}

func (r *Runner) waitForInFlight() {
	ticker := time.NewTicker(r.inFlightPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		count := r.InFlight()
		if count == 0 {
			return
		}
		slog.Info("Waiting for in-flight jobs", "count", count)
	}
}
