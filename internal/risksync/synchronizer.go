// Package risksync runs the "map features, predict, classify, persist" sequence for
// one or many projects, and keeps the display-only risk annotations up to date.
package risksync

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/features"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
)

// Predictor is the remote risk predictor.
type Predictor interface {
	Predict(ctx context.Context, sess session.Session, req remote.PredictRequest) (*remote.PredictResponse, error)
}

// ProjectUpdater writes full project records back to the store.
type ProjectUpdater interface {
	UpdateProject(ctx context.Context, sess session.Session, id int64, in domain.ProjectInput) (domain.Project, error)
}

// Result is the outcome of one successful predict-and-save.
type Result struct {
	ProjectID   int64            `json:"id"`
	Probability float64          `json:"probability"`
	Label       domain.RiskLabel `json:"label"`
}

// Progress is reported after every item of a batch settles.
type Progress struct {
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	ProjectID int64   `json:"project_id"`
	Result    *Result `json:"result,omitempty"`
	Err       error   `json:"-"`
}

// ItemFailure records why one project of a batch was not updated.
type ItemFailure struct {
	ProjectID int64 `json:"project_id"`
	Err       error `json:"-"`
}

// BatchResult aggregates a PredictAndSaveAll pass in input order.
type BatchResult struct {
	Results  []Result      `json:"results"`
	Failures []ItemFailure `json:"failures"`
}

// Attempted is the number of projects the pass tried.
func (b BatchResult) Attempted() int {
	return len(b.Results) + len(b.Failures)
}

// Synchronizer persists predicted risk labels.
type Synchronizer struct {
	predictor Predictor
	store     ProjectUpdater
	logger    *zap.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(predictor Predictor, store ProjectUpdater, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{predictor: predictor, store: store, logger: logger}
}

// PredictAndSaveOne predicts p's risk and writes the new label back as a full-record
// update. Errors from either call are returned unchanged in kind; when the predict
// call fails no write is attempted.
func (s *Synchronizer) PredictAndSaveOne(ctx context.Context, sess session.Session, p domain.Project) (Result, error) {
	if !p.HasID() {
		return Result{}, domain.ErrUnsavedProject
	}

	resp, err := s.predictor.Predict(ctx, sess, predictRequest(p))
	if err != nil {
		return Result{}, fmt.Errorf("predict project %d: %w", p.ID, err)
	}

	label := domain.ClassifyRisk(resp.RiskProb)
	updated := p
	updated.Risk = label
	if _, err := s.store.UpdateProject(ctx, sess, p.ID, updated.Input()); err != nil {
		return Result{}, fmt.Errorf("save risk for project %d: %w", p.ID, err)
	}

	return Result{ProjectID: p.ID, Probability: resp.RiskProb, Label: label}, nil
}

// PredictAndSaveAll runs PredictAndSaveOne over every project with an id, one at a
// time and in order. A failed item is recorded and the pass moves on. If ctx ends,
// the remaining items are recorded as failed with the context error.
func (s *Synchronizer) PredictAndSaveAll(ctx context.Context, sess session.Session, projects []domain.Project, onProgress func(Progress)) BatchResult {
	logger := logging.FromContext(ctx, s.logger)

	eligible := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if p.HasID() {
			eligible = append(eligible, p)
		}
	}

	var out BatchResult
	for i, p := range eligible {
		progress := Progress{Index: i, Total: len(eligible), ProjectID: p.ID}

		if err := ctx.Err(); err != nil {
			out.Failures = append(out.Failures, ItemFailure{ProjectID: p.ID, Err: err})
			progress.Err = err
		} else if res, err := s.PredictAndSaveOne(ctx, sess, p); err != nil {
			logger.Warnf("predict_and_save_all", "project %d: %v", p.ID, err)
			out.Failures = append(out.Failures, ItemFailure{ProjectID: p.ID, Err: err})
			progress.Err = err
		} else {
			out.Results = append(out.Results, res)
			progress.Result = &res
		}

		if onProgress != nil {
			onProgress(progress)
		}
	}

	logger.Infof("predict_and_save_all", "attempted=%d succeeded=%d failed=%d", out.Attempted(), len(out.Results), len(out.Failures))
	return out
}

func predictRequest(p domain.Project) remote.PredictRequest {
	return remote.PredictRequest{
		ProjectID: strconv.FormatInt(p.ID, 10),
		Features:  features.Map(p),
	}
}
