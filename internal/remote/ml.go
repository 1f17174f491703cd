package remote

import (
	"context"
	"net/http"

	"github.com/prism-infra/prism-sync/internal/session"
)

// AnomalyRequest carries the project fields checked for anomalies. All optional.
type AnomalyRequest struct {
	Code        *string  `json:"code,omitempty"`
	Name        *string  `json:"name,omitempty"`
	LocationLat *float64 `json:"location_lat"`
	LocationLng *float64 `json:"location_lng"`
	BudgetCr    *float64 `json:"budget_cr"`
	DelayMonths *float64 `json:"delay_months"`
	Status      *string  `json:"status"`
	Risk        *string  `json:"risk"`
}

type AnomalyResponse struct {
	IsAnomaly bool               `json:"is_anomaly"`
	Scores    map[string]float64 `json:"scores"`
	Message   *string            `json:"message,omitempty"`
}

type ForecastPoint struct {
	T     float64 `json:"t"`
	Count float64 `json:"count"`
	MA    float64 `json:"ma"`
}

type ForecastResponse struct {
	Points  []ForecastPoint `json:"points"`
	Summary map[string]any  `json:"summary"`
}

type SpatialRiskRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type SpatialRiskResponse struct {
	Risk    float64 `json:"risk"`
	Cluster string  `json:"cluster,omitempty"`
}

// CheckAnomaly calls POST /ml/anomaly.
func (c *Client) CheckAnomaly(ctx context.Context, sess session.Session, req AnomalyRequest) (*AnomalyResponse, error) {
	var out AnomalyResponse
	if err := c.call(ctx, sess, "ml_anomaly", http.MethodPost, "/ml/anomaly", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Forecast calls GET /ml/forecast.
func (c *Client) Forecast(ctx context.Context, sess session.Session) (*ForecastResponse, error) {
	var out ForecastResponse
	if err := c.call(ctx, sess, "ml_forecast", http.MethodGet, "/ml/forecast", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpatialRisk calls POST /ml/spatial-risk.
func (c *Client) SpatialRisk(ctx context.Context, sess session.Session, req SpatialRiskRequest) (*SpatialRiskResponse, error) {
	var out SpatialRiskResponse
	if err := c.call(ctx, sess, "ml_spatial_risk", http.MethodPost, "/ml/spatial-risk", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
