package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/paulexconde/surveyflow/internal/config"
	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/pkg/workerpool"
)

// DraftCleaner removes expired drafts and reports how many were removed.
type DraftCleaner interface {
	CleanupExpiredDrafts(ctx context.Context) (int64, error)
}

// Scheduler handles periodic tasks. Cron only enqueues work; jobs run on a worker pool
// with retries.
type Scheduler struct {
	drafts DraftCleaner
	config *config.SchedulerConfig
	log    *logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	pool   *workerpool.WorkerPool
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(drafts DraftCleaner, cfg *config.SchedulerConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		drafts: drafts,
		config: cfg,
		log:    log.With("component", "Scheduler"),
	}
}

// Start starts the worker pool and every enabled task.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})), cron.WithLogger(cronLogger{s.log}))
	if s.config.EnableDraftCleanup {
		if _, err := c.AddFunc(s.config.DraftCleanupCron, func() { s.TriggerDraftCleanup() }); err != nil {
			return fmt.Errorf("schedule draft cleanup %q: %w", s.config.DraftCleanupCron, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pool = workerpool.NewWorkerPool(ctx, s.config.Workers, s.config.QueueSize, s.log)
	s.cancel = cancel
	s.cron = c
	c.Start()

	s.log.Info("scheduler started",
		"draft_cleanup_enabled", s.config.EnableDraftCleanup,
		"draft_cleanup_cron", s.config.DraftCleanupCron)
	return nil
}

// TriggerDraftCleanup queues a draft cleanup outside the schedule. It reports false when
// the scheduler is not running or its queue is full.
func (s *Scheduler) TriggerDraftCleanup() bool {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	if pool == nil {
		return false
	}
	return pool.Submit(workerpool.WithRetry(s.config.Retries, s.config.RetryDelay, s.log, s.cleanupDrafts))
}

func (s *Scheduler) cleanupDrafts(ctx context.Context) error {
	n, err := s.drafts.CleanupExpiredDrafts(ctx)
	if err != nil {
		return err
	}
	s.log.Info("expired drafts removed", "count", n)
	return nil
}

// Stop stops scheduling and waits for queued jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, pool, cancel := s.cron, s.pool, s.cancel
	s.cron, s.pool, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.log.Info("stopping scheduler")

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	pool.Shutdown(ctx)
	cancel()
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
