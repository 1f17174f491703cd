package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prism-infra/prism-sync/internal/remote"
)

type RemoteStats struct {
	Calls            int64   `json:"calls"`
	Errors           int64   `json:"errors"`
	ErrorRate        float64 `json:"error_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Service   string       `json:"service"`
	Version   string       `json:"version"`
	DB        string       `json:"db,omitempty"`
	Redis     string       `json:"redis,omitempty"`
	Remote    *RemoteStats `json:"remote,omitempty"`
}

// RemoteMetrics exposes the call counters of a remote API client.
type RemoteMetrics interface {
	Metrics() remote.Metrics
}

type HealthHandler struct {
	serviceName string
	version     string
	db          *pgxpool.Pool
	redis       *redis.Client
	remote      RemoteMetrics
}

// NewHealthHandler reports on db, rdb and the remote client. Any of them may be nil.
func NewHealthHandler(serviceName, version string, db *pgxpool.Pool, rdb *redis.Client, rm RemoteMetrics) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		db:          db,
		redis:       rdb,
		remote:      rm,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if h.db != nil {
		if err := h.db.Ping(pingCtx); err != nil {
			dbStatus = "down"
		} else {
			dbStatus = "up"
		}
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(pingCtx).Err(); err != nil {
			redisStatus = "down"
		} else {
			redisStatus = "up"
		}
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		DB:        dbStatus,
		Redis:     redisStatus,
	}
	if h.remote != nil {
		m := h.remote.Metrics()
		resp.Remote = &RemoteStats{
			Calls:            m.Calls,
			Errors:           m.Errors,
			ErrorRate:        m.ErrorRate(),
			AverageLatencyMs: m.AverageLatency(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
