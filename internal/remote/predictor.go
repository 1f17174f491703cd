package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prism-infra/prism-sync/internal/features"
	"github.com/prism-infra/prism-sync/internal/session"
)

// PredictRequest is the predictor input.
type PredictRequest struct {
	ProjectID string          `json:"project_id,omitempty"`
	Features  features.Vector `json:"features"`
}

// PredictResponse is the predictor output.
type PredictResponse struct {
	DelayMonths float64            `json:"delay_months"`
	OverrunCr   float64            `json:"overrun_cr"`
	RiskProb    float64            `json:"risk_prob"`
	ShapValues  map[string]float64 `json:"shap_values,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
}

func (r *PredictResponse) validate(op string) error {
	if r.RiskProb < 0 || r.RiskProb > 1 {
		return fmt.Errorf("%s: risk_prob %v outside [0,1]", op, r.RiskProb)
	}
	return nil
}

// Predict calls POST /predict.
func (c *Client) Predict(ctx context.Context, sess session.Session, req PredictRequest) (*PredictResponse, error) {
	return c.predict(ctx, sess, "predict", "/predict", req)
}

// WhatIf calls POST /what-if. Same contract as Predict, never persisted.
func (c *Client) WhatIf(ctx context.Context, sess session.Session, req PredictRequest) (*PredictResponse, error) {
	return c.predict(ctx, sess, "what_if", "/what-if", req)
}

// PredictProject calls POST /projects/{id}/predict.
func (c *Client) PredictProject(ctx context.Context, sess session.Session, id int64, req PredictRequest) (*PredictResponse, error) {
	return c.predict(ctx, sess, "predict_project", projectPath(id)+"/predict", req)
}

// SimulateProject calls POST /projects/{id}/simulate.
func (c *Client) SimulateProject(ctx context.Context, sess session.Session, id int64, req PredictRequest) (*PredictResponse, error) {
	return c.predict(ctx, sess, "simulate_project", projectPath(id)+"/simulate", req)
}

func (c *Client) predict(ctx context.Context, sess session.Session, op, path string, req PredictRequest) (*PredictResponse, error) {
	if err := c.waitPredict(ctx); err != nil {
		return nil, err
	}
	var resp PredictResponse
	if err := c.call(ctx, sess, op, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(op); err != nil {
		return nil, err
	}
	return &resp, nil
}
