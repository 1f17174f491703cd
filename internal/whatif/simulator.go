// Package whatif runs exploratory, non-persisted predictions. Rapid submissions from
// one session collapse: only the newest request reaches the predictor and delivers.
package whatif

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 200 * time.Millisecond

// ErrSuperseded is returned to a submitter whose request was replaced by a newer one.
var ErrSuperseded = errors.New("what-if request superseded")

// Client is the remote what-if endpoint.
type Client interface {
	WhatIf(ctx context.Context, sess session.Session, req remote.PredictRequest) (*remote.PredictResponse, error)
}

// Result is a delivered what-if response with the token of the request it answers.
type Result struct {
	Token string `json:"token"`
	*remote.PredictResponse
}

type pending struct {
	token  string
	cancel context.CancelCauseFunc
}

// Simulator debounces what-if requests per session key.
type Simulator struct {
	client   Client
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*pending
}

func NewSimulator(client Client, debounce time.Duration, logger *zap.Logger) *Simulator {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		client:   client,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*pending),
	}
}

// Simulate waits out the debounce window and then calls the predictor. A newer
// Simulate for the same session cancels this one at any point, including while the
// remote call is in flight, and this call returns ErrSuperseded.
func (s *Simulator) Simulate(ctx context.Context, sess session.Session, req remote.PredictRequest) (Result, error) {
	key := sess.Key()
	token := uuid.NewString()
	cctx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	if prev := s.pending[key]; prev != nil {
		prev.cancel(ErrSuperseded)
	}
	s.pending[key] = &pending{token: token, cancel: cancel}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if cur := s.pending[key]; cur != nil && cur.token == token {
			delete(s.pending, key)
		}
		s.mu.Unlock()
		cancel(nil)
	}()

	timer := time.NewTimer(s.debounce)
	select {
	case <-timer.C:
	case <-cctx.Done():
		timer.Stop()
		return Result{}, context.Cause(cctx)
	}

	resp, err := s.client.WhatIf(cctx, sess, req)
	if !s.isCurrent(key, token) {
		s.logger.Debug("what-if response discarded", zap.String("token", token))
		return Result{}, ErrSuperseded
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Token: token, PredictResponse: resp}, nil
}

// Pending is the number of sessions with a request waiting or in flight.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Simulator) isCurrent(key, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.pending[key]
	return cur != nil && cur.token == token
}
