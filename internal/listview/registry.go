package listview

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/changefeed"
	"github.com/prism-infra/prism-sync/internal/session"
)

const (
	invalidateTimeout = 10 * time.Second

	DefaultIdleTTL   = 30 * time.Minute
	DefaultMaxStates = 1000
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTTL sets how long an unwatched State may go without a Get before Sweep
// drops it. A non-positive ttl keeps the default.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithMaxStates caps the number of States. Past the cap, Get evicts the least
// recently used unwatched State. A non-positive n keeps the default.
func WithMaxStates(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxStates = n
		}
	}
}

type entry struct {
	state    *State
	lastUsed time.Time
}

// Registry owns one State per session key.
type Registry struct {
	deps      Deps
	idleTTL   time.Duration
	maxStates int
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*entry
}

func NewRegistry(deps Deps, opts ...RegistryOption) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Registry{
		deps:      deps,
		idleTTL:   DefaultIdleTTL,
		maxStates: DefaultMaxStates,
		now:       time.Now,
		states:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the State of sess, creating and loading it on first use. The stored
// session is refreshed so a re-issued token takes effect.
func (r *Registry) Get(ctx context.Context, sess session.Session) (*State, error) {
	key := sess.Key()

	r.mu.Lock()
	e, ok := r.states[key]
	if !ok {
		e = &entry{state: New(sess, r.deps)}
		r.states[key] = e
	}
	e.lastUsed = r.now()
	evicted := r.evictOverCapLocked(key)
	r.mu.Unlock()

	for _, st := range evicted {
		st.Close()
	}

	st := e.state
	if ok {
		st.setSession(sess)
	}
	if err := st.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// evictOverCapLocked removes least recently used unwatched States until the
// registry is within its cap. keep is never evicted.
func (r *Registry) evictOverCapLocked(keep string) []*State {
	var out []*State
	for len(r.states) > r.maxStates {
		var (
			victim string
			oldest time.Time
		)
		for k, e := range r.states {
			if k == keep || e.state.watching() {
				continue
			}
			if victim == "" || e.lastUsed.Before(oldest) {
				victim, oldest = k, e.lastUsed
			}
		}
		if victim == "" {
			break
		}
		out = append(out, r.states[victim].state)
		delete(r.states, victim)
	}
	if len(out) > 0 {
		r.deps.Logger.Debug("list views evicted over cap", zap.Int("evicted", len(out)), zap.Int("cap", r.maxStates))
	}
	return out
}

// Forget closes and drops the State of sess, if any.
func (r *Registry) Forget(sess session.Session) {
	key := sess.Key()

	r.mu.Lock()
	e, ok := r.states[key]
	delete(r.states, key)
	r.mu.Unlock()

	if ok {
		e.state.Close()
	}
}

// Sweep drops States that have no watchers and were last used more than the idle
// TTL ago. It returns how many were dropped.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*State
	for k, e := range r.states {
		if e.lastUsed.Before(cutoff) && !e.state.watching() {
			idle = append(idle, e.state)
			delete(r.states, k)
		}
	}
	r.mu.Unlock()

	for _, st := range idle {
		st.Close()
	}
	if len(idle) > 0 {
		r.deps.Logger.Debug("idle list views swept", zap.Int("swept", len(idle)))
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Invalidate reloads every loaded State that c affects.
func (r *Registry) Invalidate(ctx context.Context, c changefeed.Change) {
	r.mu.Lock()
	targets := make([]*State, 0, len(r.states))
	for _, e := range r.states {
		targets = append(targets, e.state)
	}
	r.mu.Unlock()

	for _, st := range targets {
		st.mu.Lock()
		affected := st.loaded && !st.closed && c.Affects(st.sess.UserID)
		st.mu.Unlock()
		if !affected {
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, invalidateTimeout)
		if err := st.Reload(rctx); err != nil {
			r.deps.Logger.Warn("reload after change failed",
				zap.String("kind", string(c.Kind)),
				zap.Int64("project_id", c.ProjectID),
				zap.Error(err))
		}
		cancel()
	}
}

// Len is the number of live States.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Close closes every State.
func (r *Registry) Close() {
	r.mu.Lock()
	states := r.states
	r.states = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range states {
		e.state.Close()
	}
}
