package cronjob

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Scheduler struct {
	cron   *cron.Cron
	job    *RefreshJob
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewScheduler registers job under a six-field (with seconds) cron expression.
func NewScheduler(expr string, job *RefreshJob, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		job:    job,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(expr, s.runOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduled refresh started")
	if _, err := s.job.Run(s.ctx); err != nil {
		s.logger.Error("scheduled refresh failed", zap.Error(err))
	}
}

// Start initializes cron tasks
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("cron scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop cancels a running refresh and waits for it to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
