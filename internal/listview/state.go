// Package listview holds the project list shown to one session: the loaded rows,
// their risk annotations, the single inline edit buffer and batch refresh progress.
package listview

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/changefeed"
	"github.com/prism-infra/prism-sync/internal/history"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/risksync"
	"github.com/prism-infra/prism-sync/internal/session"
)

// Store is the remote project store.
type Store interface {
	ListProjects(ctx context.Context, sess session.Session) ([]domain.Project, error)
	GetProject(ctx context.Context, sess session.Session, id int64) (domain.Project, error)
	CreateProject(ctx context.Context, sess session.Session, in domain.ProjectInput) (domain.Project, error)
	UpdateProject(ctx context.Context, sess session.Session, id int64, in domain.ProjectInput) (domain.Project, error)
	DeleteProject(ctx context.Context, sess session.Session, id int64) (bool, error)
}

// Notifier announces mutations to other list views.
type Notifier interface {
	Publish(ctx context.Context, c changefeed.Change) error
}

// Recorder keeps the log of batch refresh runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Deps are shared by every State of a Registry. Notifier and Recorder are optional.
type Deps struct {
	Store     Store
	Predictor risksync.Predictor
	Notifier  Notifier
	Recorder  Recorder
	Logger    *zap.Logger
}

// EditBuffer is the uncommitted text of the row being edited.
type EditBuffer struct {
	ProjectID int64              `json:"project_id"`
	Form      domain.ProjectForm `json:"form"`
}

// Row is a project with the risk the list should display for it.
type Row struct {
	domain.Project
	DisplayRisk domain.RiskLabel `json:"display_risk,omitempty"`
	Probability *float64         `json:"probability,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Snapshot is a consistent copy of the list state.
type Snapshot struct {
	Projects    []Row                `json:"projects"`
	Annotations risksync.Annotations `json:"annotations"`
	Editing     *EditBuffer          `json:"editing,omitempty"`
	Refreshing  *int64               `json:"refreshing,omitempty"`
	BatchActive bool                 `json:"batch_active"`
}

// State is the list view of one session. All methods are safe for concurrent use.
type State struct {
	store        Store
	synchronizer *risksync.Synchronizer
	refresher    *risksync.Refresher
	notifier     Notifier
	recorder     Recorder
	logger       *zap.Logger

	mu         sync.Mutex
	sess       session.Session
	loaded     bool
	projects   []domain.Project
	idSet      string
	edit       *EditBuffer
	refreshing int64
	batch      bool
	reloadSeq  uint64
	appliedSeq uint64
	rowErrors  map[int64]string
	watchers   map[chan Snapshot]struct{}
	closed     bool
}

// New creates an empty State for sess. Call Reload to populate it.
func New(sess session.Session, deps Deps) *State {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &State{
		store:        deps.Store,
		synchronizer: risksync.NewSynchronizer(deps.Predictor, deps.Store, logger),
		notifier:     deps.Notifier,
		recorder:     deps.Recorder,
		logger:       logger,
		sess:         sess,
		rowErrors:    make(map[int64]string),
		watchers:     make(map[chan Snapshot]struct{}),
	}
	s.refresher = risksync.NewRefresher(deps.Predictor, logger, func(risksync.Annotations) { s.broadcast() })
	return s
}

// Session returns the session the state acts for.
func (s *State) Session() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *State) setSession(sess session.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

// Reload re-fetches the list. When the set of ids changed, a new annotation pass
// starts and supersedes the running one. An edit buffer whose row disappeared is dropped.
func (s *State) Reload(ctx context.Context) error {
	return s.reload(ctx, false)
}

func (s *State) reload(ctx context.Context, forceAnnotate bool) error {
	s.mu.Lock()
	s.reloadSeq++
	seq := s.reloadSeq
	sess := s.sess
	s.mu.Unlock()

	projects, err := s.store.ListProjects(ctx, sess)
	if err != nil {
		return fmt.Errorf("reload projects: %w", err)
	}

	s.mu.Lock()
	// Reloads overlap; a list fetched before the one already applied is stale.
	if seq < s.appliedSeq {
		s.mu.Unlock()
		logging.FromContext(ctx, s.logger).Debugf("reload", "dropped stale list %d, applied %d", seq, s.appliedSeq)
		return nil
	}
	s.appliedSeq = seq
	s.projects = projects
	s.loaded = true
	sig := idSignature(projects)
	trigger := forceAnnotate || sig != s.idSet
	s.idSet = sig

	present := make(map[int64]bool, len(projects))
	for _, p := range projects {
		present[p.ID] = true
	}
	if s.edit != nil && !present[s.edit.ProjectID] {
		s.edit = nil
	}
	for id := range s.rowErrors {
		if !present[id] {
			delete(s.rowErrors, id)
		}
	}
	// Triggered under s.mu so annotation passes start in the order lists were applied.
	if trigger {
		s.refresher.Trigger(sess, projects)
	}
	s.mu.Unlock()

	s.broadcast()
	return nil
}

func (s *State) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Reload(ctx)
}

// Snapshot returns the current rows with their display risk: the latest annotation
// when one exists, otherwise the persisted label.
func (s *State) Snapshot() Snapshot {
	annotations := s.refresher.Annotations()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Projects:    make([]Row, 0, len(s.projects)),
		Annotations: annotations,
		BatchActive: s.batch,
	}
	for _, p := range s.projects {
		row := Row{Project: p, DisplayRisk: p.Risk, Error: s.rowErrors[p.ID]}
		if a, ok := annotations[p.ID]; ok {
			prob := a.Probability
			row.DisplayRisk = a.Label
			row.Probability = &prob
		}
		snap.Projects = append(snap.Projects, row)
	}
	if s.edit != nil {
		buf := *s.edit
		snap.Editing = &buf
	}
	if s.refreshing != 0 {
		id := s.refreshing
		snap.Refreshing = &id
	}
	return snap
}

// Fetch loads a single project straight from the store.
func (s *State) Fetch(ctx context.Context, id int64) (domain.Project, error) {
	return s.store.GetProject(ctx, s.Session(), id)
}

// Create parses form, creates the project in the session's scope and reloads.
func (s *State) Create(ctx context.Context, form domain.ProjectForm) (domain.Project, error) {
	in, err := form.Parse()
	if err != nil {
		return domain.Project{}, err
	}

	sess := s.Session()
	created, err := s.store.CreateProject(ctx, sess, in)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}

	s.publish(ctx, changefeed.KindCreated, created.ID)
	s.reloadAfterMutation(ctx, false)
	return created, nil
}

// BeginEdit opens the edit buffer on row id, replacing any other open buffer.
func (s *State) BeginEdit(id int64) (EditBuffer, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.projects, func(p domain.Project) bool { return p.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return EditBuffer{}, domain.ErrNotFound
	}
	buf := &EditBuffer{ProjectID: id, Form: domain.FormFromProject(s.projects[idx])}
	s.edit = buf
	delete(s.rowErrors, id)
	out := *buf
	s.mu.Unlock()

	s.broadcast()
	return out, nil
}

// UpdateEdit applies patch to the open buffer of row id.
func (s *State) UpdateEdit(id int64, patch domain.FormPatch) (EditBuffer, error) {
	s.mu.Lock()
	if err := s.checkEditLocked(id); err != nil {
		s.mu.Unlock()
		return EditBuffer{}, err
	}
	s.edit.Form = s.edit.Form.Apply(patch)
	out := *s.edit
	s.mu.Unlock()

	s.broadcast()
	return out, nil
}

// CancelEdit discards the buffer of row id. The store is never called.
func (s *State) CancelEdit(id int64) error {
	s.mu.Lock()
	if err := s.checkEditLocked(id); err != nil {
		s.mu.Unlock()
		return err
	}
	s.edit = nil
	delete(s.rowErrors, id)
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// SaveEdit parses the buffer of row id and writes it as a full-record update.
// On any failure the buffer stays open and the row carries the error.
func (s *State) SaveEdit(ctx context.Context, id int64) (domain.Project, error) {
	s.mu.Lock()
	if err := s.checkEditLocked(id); err != nil {
		s.mu.Unlock()
		return domain.Project{}, err
	}
	buf := s.edit
	form := buf.Form
	sess := s.sess
	s.mu.Unlock()

	in, err := form.Parse()
	if err != nil {
		s.setRowError(id, err)
		return domain.Project{}, err
	}

	updated, err := s.store.UpdateProject(ctx, sess, id, in)
	if err != nil {
		s.setRowError(id, err)
		return domain.Project{}, fmt.Errorf("save project %d: %w", id, err)
	}

	s.mu.Lock()
	// A newer BeginEdit may have replaced the buffer while the update was in flight.
	if s.edit == buf {
		s.edit = nil
	}
	delete(s.rowErrors, id)
	s.mu.Unlock()

	s.publish(ctx, changefeed.KindUpdated, id)
	s.reloadAfterMutation(ctx, false)
	return updated, nil
}

// Delete removes project id from the store.
func (s *State) Delete(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteProject(ctx, s.Session(), id)
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("delete project %d: %w", id, domain.ErrNotFound)
	}

	s.publish(ctx, changefeed.KindDeleted, id)
	s.reloadAfterMutation(ctx, false)
	return nil
}

// RefreshRisk runs predict-and-save for row id and then recomputes annotations.
// It is rejected while a batch or another row refresh is running, so the refreshing
// marker always belongs to one operation.
func (s *State) RefreshRisk(ctx context.Context, id int64) (risksync.Result, error) {
	s.mu.Lock()
	if s.batch || s.refreshing != 0 {
		s.mu.Unlock()
		return risksync.Result{}, domain.ErrBatchInProgress
	}
	idx := slices.IndexFunc(s.projects, func(p domain.Project) bool { return p.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return risksync.Result{}, domain.ErrNotFound
	}
	p := s.projects[idx]
	sess := s.sess
	s.refreshing = id
	delete(s.rowErrors, id)
	s.mu.Unlock()
	s.broadcast()

	res, err := s.synchronizer.PredictAndSaveOne(ctx, sess, p)

	s.mu.Lock()
	s.refreshing = 0
	if err != nil {
		s.rowErrors[id] = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.broadcast()
		return risksync.Result{}, err
	}

	s.publish(ctx, changefeed.KindRiskRefreshed, id)
	s.reloadAfterMutation(ctx, true)
	return res, nil
}

// RefreshAll runs predict-and-save over every saved row, one at a time. Only one
// batch (or single-row refresh) may run per State. onProgress, if set, sees every settled item.
func (s *State) RefreshAll(ctx context.Context, onProgress func(risksync.Progress)) (risksync.BatchResult, error) {
	s.mu.Lock()
	if s.batch || s.refreshing != 0 {
		s.mu.Unlock()
		return risksync.BatchResult{}, domain.ErrBatchInProgress
	}
	s.batch = true
	projects := slices.Clone(s.projects)
	sess := s.sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batch = false
		s.refreshing = 0
		s.mu.Unlock()
		s.broadcast()
	}()

	order := make([]int64, 0, len(projects))
	for _, p := range projects {
		if p.HasID() {
			order = append(order, p.ID)
		}
	}
	if len(order) > 0 {
		s.mu.Lock()
		s.refreshing = order[0]
		s.mu.Unlock()
		s.broadcast()
	}

	started := time.Now()
	var reports []risksync.Progress
	res := s.synchronizer.PredictAndSaveAll(ctx, sess, projects, func(p risksync.Progress) {
		reports = append(reports, p)

		s.mu.Lock()
		if p.Err != nil {
			s.rowErrors[p.ProjectID] = p.Err.Error()
		} else {
			delete(s.rowErrors, p.ProjectID)
		}
		s.refreshing = 0
		if next := p.Index + 1; next < len(order) {
			s.refreshing = order[next]
		}
		s.mu.Unlock()
		s.broadcast()

		if onProgress != nil {
			onProgress(p)
		}
	})

	// The run is logged even when the caller went away mid-batch.
	bg := context.WithoutCancel(ctx)
	if s.recorder != nil {
		run := history.NewRun(sess.UserID, started, time.Now(), reports)
		if err := s.recorder.Record(bg, run); err != nil {
			logging.FromContext(ctx, s.logger).Warnf("refresh_all", "record run: %v", err)
		}
	}

	if len(res.Results) > 0 {
		s.publish(bg, changefeed.KindRiskRefreshed, 0)
	}
	s.reloadAfterMutation(bg, true)
	return res, nil
}

// Watch returns a channel that receives the latest snapshot after every change,
// and a func to stop watching. Slow readers only see the newest snapshot.
func (s *State) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *State) watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers) > 0
}

// Close stops background work and ends every watch.
func (s *State) Close() {
	s.refresher.Stop()

	s.mu.Lock()
	s.closed = true
	for ch := range s.watchers {
		delete(s.watchers, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *State) broadcast() {
	snap := s.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *State) checkEditLocked(id int64) error {
	if s.edit == nil {
		return domain.ErrNoEditInProgress
	}
	if s.edit.ProjectID != id {
		return domain.ErrEditMismatch
	}
	return nil
}

func (s *State) setRowError(id int64, err error) {
	s.mu.Lock()
	s.rowErrors[id] = err.Error()
	s.mu.Unlock()
	s.broadcast()
}

func (s *State) publish(ctx context.Context, kind changefeed.Kind, projectID int64) {
	if s.notifier == nil {
		return
	}
	c := changefeed.Change{UserID: s.Session().UserID, ProjectID: projectID, Kind: kind}
	if err := s.notifier.Publish(ctx, c); err != nil {
		logging.FromContext(ctx, s.logger).Warnf("publish_change", "%s project %d: %v", kind, projectID, err)
	}
}

// The mutation already succeeded; a failed reload only leaves the list stale.
func (s *State) reloadAfterMutation(ctx context.Context, forceAnnotate bool) {
	if err := s.reload(ctx, forceAnnotate); err != nil {
		logging.FromContext(ctx, s.logger).Warnf("reload", "%v", err)
	}
}

func idSignature(projects []domain.Project) string {
	ids := make([]int64, 0, len(projects))
	for _, p := range projects {
		if p.HasID() {
			ids = append(ids, p.ID)
		}
	}
	slices.Sort(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
