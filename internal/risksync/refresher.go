package risksync

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/session"
)

// Annotations maps project id to its latest display-only prediction.
type Annotations map[int64]domain.RiskAnnotation

var emptyAnnotations = Annotations{}

// Refresher recomputes annotations in the background without writing to the store.
// Each Trigger starts a new pass and supersedes the one in flight: the old pass is
// cancelled and its results are dropped even if they arrive later. Readers always
// see a whole map from a single pass.
type Refresher struct {
	predictor Predictor
	logger    *zap.Logger
	onCommit  func(Annotations)

	root       context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
	generation atomic.Uint64
	current    atomic.Pointer[Annotations]

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRefresher creates a Refresher. onCommit, if set, is called after each
// committed pass with the new map.
func NewRefresher(predictor Predictor, logger *zap.Logger, onCommit func(Annotations)) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, stop := context.WithCancel(context.Background())
	r := &Refresher{
		predictor: predictor,
		logger:    logger,
		onCommit:  onCommit,
		root:      root,
		stop:      stop,
	}
	r.current.Store(&emptyAnnotations)
	return r
}

// Annotations returns the map committed by the latest pass. Callers must not mutate it.
func (r *Refresher) Annotations() Annotations {
	return *r.current.Load()
}

// Generation is the token of the most recently triggered pass.
func (r *Refresher) Generation() uint64 {
	return r.generation.Load()
}

// Trigger starts a pass over projects. The returned channel is closed once the pass
// has either committed or been discarded.
func (r *Refresher) Trigger(sess session.Session, projects []domain.Project) <-chan struct{} {
	done := make(chan struct{})
	snapshot := append([]domain.Project(nil), projects...)

	r.mu.Lock()
	if r.root.Err() != nil {
		r.mu.Unlock()
		close(done)
		return done
	}
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(r.root)
	r.cancel = cancel
	gen := r.generation.Add(1)
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, cancel, gen, sess, snapshot, done)
	return done
}

// Stop cancels any pass in flight and waits for it to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Refresher) run(ctx context.Context, cancel context.CancelFunc, gen uint64, sess session.Session, projects []domain.Project, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)
	defer cancel()

	next := make(Annotations, len(projects))
	for _, p := range projects {
		if !p.HasID() {
			continue
		}
		if ctx.Err() != nil {
			r.logger.Debug("annotation pass superseded", zap.Uint64("generation", gen))
			return
		}
		resp, err := r.predictor.Predict(ctx, sess, predictRequest(p))
		if err != nil {
			// The row keeps showing its persisted label.
			r.logger.Debug("annotation skipped", zap.Int64("project_id", p.ID), zap.Error(err))
			continue
		}
		next[p.ID] = domain.RiskAnnotation{
			ProjectID:   p.ID,
			Probability: resp.RiskProb,
			Label:       domain.ClassifyRisk(resp.RiskProb),
		}
	}
	if ctx.Err() != nil {
		return
	}

	r.commit(gen, next)
}

func (r *Refresher) commit(gen uint64, next Annotations) {
	r.mu.Lock()
	if r.generation.Load() != gen {
		r.mu.Unlock()
		r.logger.Debug("stale annotation pass discarded", zap.Uint64("generation", gen))
		return
	}
	r.current.Store(&next)
	r.mu.Unlock()

	if r.onCommit != nil {
		r.onCommit(next)
	}
}
