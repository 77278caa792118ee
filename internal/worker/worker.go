// Package worker runs the scan claim loop. Any number of worker processes
// can share one database; the store's atomic claim guarantees each queued
// job is executed by exactly one of them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/candidates"
	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/history"
	"github.com/nmery/needscan/internal/scoring"
	"github.com/nmery/needscan/internal/storage"
)

// Worker polls the store for queued jobs and executes them one at a time.
type Worker struct {
	id     string
	store  storage.Storage
	ledger *history.Ledger
	loader *candidates.Loader
	scorer *scoring.LLMScorer
	cfg    *config.Config
	log    *zap.Logger

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	sweeper *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a worker. The worker id embeds hostname and pid so stale
// claims can be traced back to the process that held them.
func New(store storage.Storage, ledger *history.Ledger, loader *candidates.Loader, scorer *scoring.LLMScorer, cfg *config.Config, log *zap.Logger) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	return &Worker{
		id:     fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8]),
		store:  store,
		ledger: ledger,
		loader: loader,
		scorer: scorer,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// ID returns this worker's claim identity.
func (w *Worker) ID() string {
	return w.id
}

// Start begins the claim loop and schedules the nightly history sweep.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	w.sweeper = cron.New()
	if _, err := w.sweeper.AddFunc(w.cfg.Worker.SweepSchedule, func() {
		if _, err := w.ledger.Sweep(context.Background(), w.cfg.History.RetentionDays); err != nil {
			w.log.Warn("scheduled history sweep failed", zap.Error(err))
		}
	}); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("invalid sweep schedule %q: %w", w.cfg.Worker.SweepSchedule, err)
	}
	w.sweeper.Start()

	w.log.Info("worker started",
		zap.String("worker_id", w.id),
		zap.Duration("poll_interval", w.cfg.Worker.PollInterval))

	go w.claimLoop(ctx)
	return nil
}

// Stop signals shutdown and waits for the claim loop to drain. A scan that
// is already in flight finishes first; jobs are never abandoned mid-write.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if w.sweeper != nil {
		<-w.sweeper.Stop().Done()
	}

	w.log.Info("worker stopped", zap.String("worker_id", w.id))
	return nil
}

// claimLoop is the main poll loop. One tick claims and runs at most one job.
func (w *Worker) claimLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.ProcessNext(ctx); err != nil {
				// Log error but continue polling
				w.log.Error("scan execution failed", zap.Error(err))
			}
		}
	}
}

// ProcessNext claims the oldest queued job and runs it to a terminal state.
// It reports whether a job was claimed. A run error is recorded on the job
// via FailJob and also returned for logging.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := w.log.With(zap.String("job_id", job.ID))
	log.Info("claimed scan job",
		zap.String("mode", job.Mode),
		zap.String("run_mode", string(job.RunMode)),
		zap.String("input_pattern", job.InputPattern))

	hbStop := make(chan struct{})
	hbDone := make(chan struct{})
	go w.heartbeatLoop(ctx, job.ID, hbStop, hbDone)

	runErr := w.runScan(ctx, job)

	close(hbStop)
	<-hbDone

	if runErr != nil {
		if errors.Is(runErr, storage.ErrNotRunning) {
			// An operator reset the job out from under us. Its partial
			// writes were already discarded; just walk away.
			log.Warn("job was reset while in flight, abandoning run")
			return true, nil
		}
		if failErr := w.store.FailJob(ctx, job.ID, runErr.Error()); failErr != nil {
			log.Error("failed to record job failure", zap.Error(failErr))
		}
		return true, fmt.Errorf("scan %s failed: %w", job.ID, runErr)
	}
	return true, nil
}

// heartbeatLoop refreshes the job's liveness timestamp until the scan ends,
// keeping long LLM phases from tripping the stale-job recovery path.
func (w *Worker) heartbeatLoop(ctx context.Context, jobID string, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.cfg.Worker.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID, w.id); err != nil {
				w.log.Debug("heartbeat update failed",
					zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}
}
