package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/api/http/httperr"
	"github.com/prism-infra/prism-sync/internal/api/http/middleware"
	"github.com/prism-infra/prism-sync/internal/features"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
	"github.com/prism-infra/prism-sync/internal/whatif"
)

// MLClient is the part of the remote API behind the exploratory endpoints.
type MLClient interface {
	GetProject(ctx context.Context, sess session.Session, id int64) (domain.Project, error)
	PredictProject(ctx context.Context, sess session.Session, id int64, req remote.PredictRequest) (*remote.PredictResponse, error)
	SimulateProject(ctx context.Context, sess session.Session, id int64, req remote.PredictRequest) (*remote.PredictResponse, error)
	CheckAnomaly(ctx context.Context, sess session.Session, req remote.AnomalyRequest) (*remote.AnomalyResponse, error)
	Forecast(ctx context.Context, sess session.Session) (*remote.ForecastResponse, error)
	SpatialRisk(ctx context.Context, sess session.Session, req remote.SpatialRiskRequest) (*remote.SpatialRiskResponse, error)
}

// Simulator runs debounced what-if requests.
type Simulator interface {
	Simulate(ctx context.Context, sess session.Session, req remote.PredictRequest) (whatif.Result, error)
}

type MLHandler struct {
	client    MLClient
	simulator Simulator
	logger    *zap.Logger
}

func NewMLHandler(client MLClient, simulator Simulator, logger *zap.Logger) *MLHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MLHandler{client: client, simulator: simulator, logger: logger}
}

func (h *MLHandler) fail(c *gin.Context, op string, err error) {
	if httperr.Status(err) >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), h.logger).Error(op, err)
	}
	httperr.Write(c, err)
}

type predictReq struct {
	ProjectID string           `json:"project_id"`
	Features  *features.Vector `json:"features"`
}

func (h *MLHandler) whatIf(c *gin.Context) {
	var req predictReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Features == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "features are required"})
		return
	}

	res, err := h.simulator.Simulate(c.Request.Context(), middleware.SessionFrom(c), remote.PredictRequest{
		ProjectID: req.ProjectID,
		Features:  *req.Features,
	})
	if err != nil {
		h.fail(c, "what_if", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": res.Token, "prediction": res.PredictResponse})
}

// projectRequest uses the features in the body, or derives them from the stored project.
func (h *MLHandler) projectRequest(c *gin.Context) (int64, remote.PredictRequest, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid project id"})
		return 0, remote.PredictRequest{}, false
	}

	var body predictReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
			return 0, remote.PredictRequest{}, false
		}
	}

	req := remote.PredictRequest{ProjectID: strconv.FormatInt(id, 10)}
	if body.Features != nil {
		req.Features = *body.Features
		return id, req, true
	}

	p, err := h.client.GetProject(c.Request.Context(), middleware.SessionFrom(c), id)
	if err != nil {
		h.fail(c, "get_project", err)
		return 0, remote.PredictRequest{}, false
	}
	req.Features = features.Map(p)
	return id, req, true
}

func (h *MLHandler) predictProject(c *gin.Context) {
	id, req, ok := h.projectRequest(c)
	if !ok {
		return
	}
	resp, err := h.client.PredictProject(c.Request.Context(), middleware.SessionFrom(c), id, req)
	if err != nil {
		h.fail(c, "predict_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "prediction": resp, "label": domain.ClassifyRisk(resp.RiskProb)})
}

func (h *MLHandler) simulateProject(c *gin.Context) {
	id, req, ok := h.projectRequest(c)
	if !ok {
		return
	}
	resp, err := h.client.SimulateProject(c.Request.Context(), middleware.SessionFrom(c), id, req)
	if err != nil {
		h.fail(c, "simulate_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "prediction": resp, "label": domain.ClassifyRisk(resp.RiskProb)})
}

func (h *MLHandler) anomaly(c *gin.Context) {
	var req remote.AnomalyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	resp, err := h.client.CheckAnomaly(c.Request.Context(), middleware.SessionFrom(c), req)
	if err != nil {
		h.fail(c, "ml_anomaly", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "anomaly": resp})
}

func (h *MLHandler) forecast(c *gin.Context) {
	resp, err := h.client.Forecast(c.Request.Context(), middleware.SessionFrom(c))
	if err != nil {
		h.fail(c, "ml_forecast", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "forecast": resp})
}

func (h *MLHandler) spatialRisk(c *gin.Context) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "lat and lng are required"})
		return
	}
	resp, err := h.client.SpatialRisk(c.Request.Context(), middleware.SessionFrom(c), remote.SpatialRiskRequest{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		h.fail(c, "ml_spatial_risk", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "spatial_risk": resp})
}

// Register attaches the exploratory endpoints to the API group.
func (h *MLHandler) Register(api *gin.RouterGroup) {
	api.POST("/what-if", h.whatIf)

	ml := api.Group("/ml")
	ml.POST("/anomaly", h.anomaly)
	ml.GET("/forecast", h.forecast)
	ml.POST("/spatial-risk", h.spatialRisk)
}

// RegisterProjectRoutes attaches project-scoped prediction to the projects group.
func (h *MLHandler) RegisterProjectRoutes(projects *gin.RouterGroup) {
	projects.POST("/:id/predict", h.predictProject)
	projects.POST("/:id/simulate", h.simulateProject)
}
