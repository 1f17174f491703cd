package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/api/http/httperr"
	"github.com/prism-infra/prism-sync/internal/api/http/middleware"
	"github.com/prism-infra/prism-sync/internal/history"
	"github.com/prism-infra/prism-sync/internal/listview"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/risksync"
)

// RunLister reads the batch refresh log.
type RunLister interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]history.Run, error)
}

// Handler bundles the dependencies for project list endpoints.
type Handler struct {
	registry *listview.Registry
	runs     RunLister
	logger   *zap.Logger
}

// New creates a Handler. runs may be nil when no history store is configured.
func New(registry *listview.Registry, runs RunLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, runs: runs, logger: logger}
}

func (h *Handler) state(c *gin.Context) (*listview.State, bool) {
	st, err := h.registry.Get(c.Request.Context(), middleware.SessionFrom(c))
	if err != nil {
		h.fail(c, "load_list", err)
		return nil, false
	}
	return st, true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if httperr.Status(err) >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), h.logger).Error(op, err)
	}
	httperr.Write(c, err)
}

func projectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid project id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) list(c *gin.Context) {
	st, ok := h.state(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": st.Snapshot()})
}

func (h *Handler) reload(c *gin.Context) {
	st, ok := h.state(c)
	if !ok {
		return
	}
	if err := st.Reload(c.Request.Context()); err != nil {
		h.fail(c, "reload", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": st.Snapshot()})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	p, err := st.Fetch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": projectView(p)})
}

func (h *Handler) create(c *gin.Context) {
	var form domain.ProjectForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	p, err := st.Create(c.Request.Context(), form)
	if err != nil {
		h.fail(c, "create_project", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	if err := st.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) beginEdit(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	buf, err := st.BeginEdit(id)
	if err != nil {
		h.fail(c, "begin_edit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "editing": buf})
}

func (h *Handler) updateEdit(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	var patch domain.FormPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	buf, err := st.UpdateEdit(id, patch)
	if err != nil {
		h.fail(c, "update_edit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "editing": buf})
}

func (h *Handler) saveEdit(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	p, err := st.SaveEdit(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "save_edit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) cancelEdit(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	if err := st.CancelEdit(id); err != nil {
		h.fail(c, "cancel_edit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) refreshOne(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	st, ok := h.state(c)
	if !ok {
		return
	}
	res, err := st.RefreshRisk(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "refresh_risk", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

type failureView struct {
	ProjectID int64  `json:"project_id"`
	Error     string `json:"error"`
}

func (h *Handler) refreshAll(c *gin.Context) {
	st, ok := h.state(c)
	if !ok {
		return
	}
	res, err := st.RefreshAll(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, "refresh_all", err)
		return
	}

	failures := make([]failureView, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, failureView{ProjectID: f.ProjectID, Error: f.Err.Error()})
	}
	results := res.Results
	if results == nil {
		results = []risksync.Result{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"attempted": res.Attempted(),
		"results":   results,
		"failures":  failures,
	})
}

func (h *Handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "runs": []history.Run{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	sess := middleware.SessionFrom(c)

	runs, err := h.runs.ListRecent(c.Request.Context(), sess.UserID, limit)
	if err != nil {
		logging.FromContext(c.Request.Context(), h.logger).Error("list_runs", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "runs": runs})
}

// projectView renders a single project with its location as a [lat, lng] pair.
func projectView(p domain.Project) gin.H {
	return gin.H{
		"id":           p.ID,
		"code":         p.Code,
		"name":         p.Name,
		"location":     []*float64{p.Lat, p.Lng},
		"location_lat": p.Lat,
		"location_lng": p.Lng,
		"budget_cr":    p.BudgetCr,
		"status":       p.Status,
		"risk":         p.Risk,
		"delay_months": p.DelayMonths,
	}
}
