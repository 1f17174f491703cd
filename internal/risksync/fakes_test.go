package risksync

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePredictor struct {
	mu       sync.Mutex
	probs    map[int64]float64
	fail     map[int64]error
	gates    map[int64]chan struct{}
	calls    []int64
	requests []remote.PredictRequest
	inFlight int
	maxIn    int
}

func newFakePredictor() *fakePredictor {
	return &fakePredictor{
		probs: map[int64]float64{},
		fail:  map[int64]error{},
		gates: map[int64]chan struct{}{},
	}
}

func (f *fakePredictor) Predict(ctx context.Context, sess session.Session, req remote.PredictRequest) (*remote.PredictResponse, error) {
	id, _ := strconv.ParseInt(req.ProjectID, 10, 64)

	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.requests = append(f.requests, req)
	f.inFlight++
	if f.inFlight > f.maxIn {
		f.maxIn = f.inFlight
	}
	gate := f.gates[id]
	err := f.fail[id]
	prob := f.probs[id]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &remote.PredictResponse{RiskProb: prob}, nil
}

func (f *fakePredictor) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

type update struct {
	id int64
	in domain.ProjectInput
}

type fakeStore struct {
	mu      sync.Mutex
	fail    map[int64]error
	updates []update
}

func newFakeStore() *fakeStore {
	return &fakeStore{fail: map[int64]error{}}
}

func (f *fakeStore) UpdateProject(ctx context.Context, sess session.Session, id int64, in domain.ProjectInput) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return domain.Project{}, err
	}
	f.updates = append(f.updates, update{id: id, in: in})
	return domain.Project{ID: id, Code: in.Code, Name: in.Name}, nil
}

func project(id int64, budget, delay float64) domain.Project {
	return domain.Project{
		ID:          id,
		Code:        "P-" + strconv.FormatInt(id, 10),
		Name:        "Project " + strconv.FormatInt(id, 10),
		BudgetCr:    &budget,
		DelayMonths: &delay,
	}
}
