// Package cronjob runs unattended batch risk refreshes for a service session.
package cronjob

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/changefeed"
	"github.com/prism-infra/prism-sync/internal/history"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/risksync"
	"github.com/prism-infra/prism-sync/internal/session"
)

// Store lists projects and writes refreshed labels back.
type Store interface {
	risksync.ProjectUpdater
	ListProjects(ctx context.Context, sess session.Session) ([]domain.Project, error)
}

type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

type Notifier interface {
	Publish(ctx context.Context, c changefeed.Change) error
}

// RefreshJob is one predict-and-save pass over every project visible to Session.
// Recorder and Notifier may be nil.
type RefreshJob struct {
	Session   session.Session
	Store     Store
	Predictor risksync.Predictor
	Recorder  Recorder
	Notifier  Notifier
	Logger    *zap.Logger
}

// Run lists the projects, refreshes them in order and logs the run. Item failures
// do not fail the job; only listing does.
func (j *RefreshJob) Run(ctx context.Context) (risksync.BatchResult, error) {
	logger := j.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	projects, err := j.Store.ListProjects(ctx, j.Session)
	if err != nil {
		return risksync.BatchResult{}, fmt.Errorf("list projects: %w", err)
	}

	started := time.Now()
	var reports []risksync.Progress
	synchronizer := risksync.NewSynchronizer(j.Predictor, j.Store, logger)
	res := synchronizer.PredictAndSaveAll(ctx, j.Session, projects, func(p risksync.Progress) {
		reports = append(reports, p)
		if p.Err != nil {
			logger.Warn("refresh item failed", zap.Int64("project_id", p.ProjectID), zap.Error(p.Err))
		}
	})

	bg := context.WithoutCancel(ctx)
	if j.Recorder != nil {
		if err := j.Recorder.Record(bg, history.NewRun(j.Session.UserID, started, time.Now(), reports)); err != nil {
			logger.Warn("record refresh run", zap.Error(err))
		}
	}
	if j.Notifier != nil && len(res.Results) > 0 {
		change := changefeed.Change{UserID: j.Session.UserID, Kind: changefeed.KindRiskRefreshed}
		if err := j.Notifier.Publish(bg, change); err != nil {
			logger.Warn("publish refresh", zap.Error(err))
		}
	}

	logger.Info("refresh run finished",
		zap.Int("attempted", res.Attempted()),
		zap.Int("succeeded", len(res.Results)),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}
