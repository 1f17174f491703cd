package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/prism-infra/prism-sync/internal/features"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, opts...)
}

func TestListProjects_ScopeAndAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/projects", r.URL.Path)
		assert.Equal(t, "user-7", r.URL.Query().Get("user_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "rid-1", r.Header.Get("X-Request-Id"))
		w.Write([]byte(`[
			{"id": 1, "code": "P-1", "name": "Bridge", "location_lat": 12.5, "location_lng": 77.1, "budget_cr": 50, "risk": "medium", "delay_months": 6},
			{"id": 2, "code": "P-2", "name": "Dam", "location": [19.0, 72.8], "budget_cr": "75.5", "delay_months": "n/a"},
			{"id": 3, "code": "", "name": "No code"},
			{"id": 4, "code": "P-4", "name": "Bad risk", "risk": "catastrophic"}
		]`))
	})

	ctx := logging.WithRequestID(context.Background(), "rid-1")
	got, err := client.ListProjects(ctx, session.Session{Token: "tok", UserID: "user-7"})
	require.NoError(t, err)
	require.Len(t, got, 2, "malformed records are rejected")

	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, domain.RiskMedium, got[0].Risk)
	require.NotNil(t, got[0].Lat)
	assert.Equal(t, 12.5, *got[0].Lat)

	assert.Equal(t, int64(2), got[1].ID)
	require.NotNil(t, got[1].Lat)
	assert.Equal(t, 19.0, *got[1].Lat)
	require.NotNil(t, got[1].Lng)
	assert.Equal(t, 72.8, *got[1].Lng)
	require.NotNil(t, got[1].BudgetCr)
	assert.Equal(t, 75.5, *got[1].BudgetCr)
	assert.Nil(t, got[1].DelayMonths, "non-numeric text decodes as null")
}

func TestListProjects_NoTokenNoScope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth := r.Header["Authorization"]
		assert.False(t, hasAuth)
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`[]`))
	})

	got, err := client.ListProjects(context.Background(), session.Session{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocationFallbackPerCoordinate(t *testing.T) {
	rec := projectRecord{Code: "P", Name: "N"}
	require.NoError(t, json.Unmarshal([]byte(`{"code":"P","name":"N","location":[1.5,2.5],"location_lat":9.5}`), &rec))

	p, err := rec.toDomain()
	require.NoError(t, err)
	assert.Equal(t, 9.5, *p.Lat)
	assert.Equal(t, 2.5, *p.Lng)
}

func TestCreateProject(t *testing.T) {
	t.Run("sends scoped payload", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user-1", body["user_id"])
			assert.Equal(t, "P-9", body["code"])
			assert.Contains(t, body, "budget_cr")
			assert.Nil(t, body["budget_cr"])
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 9, "code": "P-9", "name": "Tunnel"}`))
		})

		p, err := client.CreateProject(context.Background(), session.Session{UserID: "user-1"}, domain.ProjectInput{Code: "P-9", Name: "Tunnel"})
		require.NoError(t, err)
		assert.Equal(t, int64(9), p.ID)
	})

	t.Run("never sends an invalid record", func(t *testing.T) {
		called := false
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

		_, err := client.CreateProject(context.Background(), session.Session{}, domain.ProjectInput{Name: "x"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.False(t, called)
	})

	t.Run("remote validation failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"code taken"}`))
		})

		_, err := client.CreateProject(context.Background(), session.Session{}, domain.ProjectInput{Code: "P", Name: "N"})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Contains(t, se.Body, "code taken")
	})
}

func TestUpdateProject_OmitsUserID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/projects/5", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "user_id")
		assert.Equal(t, "High", body["risk"])
		w.Write([]byte(`{"id": 5, "code": "P-5", "name": "Port", "risk": "High"}`))
	})

	risk := "High"
	p, err := client.UpdateProject(context.Background(), session.Session{UserID: "u"}, 5, domain.ProjectInput{UserID: "u", Code: "P-5", Name: "Port", Risk: &risk})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, p.Risk)
}

func TestUpdateProject_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.UpdateProject(context.Background(), session.Session{}, 5, domain.ProjectInput{Code: "P", Name: "N"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAndDeleteProject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id": 3, "code": "P-3", "name": "Canal", "location": [10, null]}`))
		case http.MethodDelete:
			assert.Equal(t, "/projects/3", r.URL.Path)
			w.Write([]byte(`{"ok": true}`))
		}
	})

	p, err := client.GetProject(context.Background(), session.Session{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *p.Lat)
	assert.Nil(t, p.Lng)

	ok, err := client.DeleteProject(context.Background(), session.Session{}, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1", req.ProjectID)
		assert.Equal(t, 0.5, req.Features.MaterialCost)
		w.Write([]byte(`{"delay_months": 2.5, "overrun_cr": 4, "risk_prob": 0.42, "shap_values": {"material_cost": 0.1}}`))
	})

	resp, err := client.Predict(context.Background(), session.Session{}, PredictRequest{
		ProjectID: "1",
		Features:  features.Vector{MaterialCost: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.42, resp.RiskProb)
	assert.Equal(t, 0.1, resp.ShapValues["material_cost"])
}

func TestPredict_RejectsOutOfRangeProbability(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"delay_months": 0, "overrun_cr": 0, "risk_prob": 1.7}`))
	})

	_, err := client.Predict(context.Background(), session.Session{}, PredictRequest{})
	assert.Error(t, err)
}

func TestPredict_TransportFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)

	_, err := client.Predict(context.Background(), session.Session{}, PredictRequest{})
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}

func TestPredict_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"risk_prob": 0.1}`))
	}, WithPredictRate(rate.Every(time.Hour), 1))

	_, err := client.Predict(context.Background(), session.Session{}, PredictRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Predict(ctx, session.Session{}, PredictRequest{})
	assert.Error(t, err, "second call must wait for the limiter")
}

func TestWhatIfAndProjectScopedPredict(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"risk_prob": 0.7}`))
	})
	ctx := context.Background()

	_, err := client.WhatIf(ctx, session.Session{}, PredictRequest{})
	require.NoError(t, err)
	_, err = client.PredictProject(ctx, session.Session{}, 4, PredictRequest{})
	require.NoError(t, err)
	_, err = client.SimulateProject(ctx, session.Session{}, 4, PredictRequest{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/what-if", "/projects/4/predict", "/projects/4/simulate"}, paths)
}

func TestMLHelpers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ml/anomaly":
			w.Write([]byte(`{"is_anomaly": true, "scores": {"budget_cr": 3.2}, "message": "budget outlier"}`))
		case "/ml/forecast":
			w.Write([]byte(`{"points": [{"t": 1, "count": 4, "ma": 3.5}], "summary": {"trend": "up"}}`))
		case "/ml/spatial-risk":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"lat": 12.9, "lng": 77.6}`, string(body))
			w.Write([]byte(`{"risk": 0.8, "cluster": "south"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	an, err := client.CheckAnomaly(ctx, session.Session{}, AnomalyRequest{})
	require.NoError(t, err)
	assert.True(t, an.IsAnomaly)
	assert.Equal(t, 3.2, an.Scores["budget_cr"])

	fc, err := client.Forecast(ctx, session.Session{})
	require.NoError(t, err)
	require.Len(t, fc.Points, 1)
	assert.Equal(t, 3.5, fc.Points[0].MA)

	sr, err := client.SpatialRisk(ctx, session.Session{}, SpatialRiskRequest{Lat: 12.9, Lng: 77.6})
	require.NoError(t, err)
	assert.Equal(t, "south", sr.Cluster)
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token": "jwt-1", "token_type": "bearer"}`))
	})

	tok, err := client.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok.AccessToken)

	_, err = client.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "wrong"})
	assert.True(t, IsValidation(err))
}

func TestMetricsRecordedPerClient(t *testing.T) {
	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	other := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"points": []}`))
	})

	_, _ = failing.Forecast(context.Background(), session.Session{})
	_, err := other.Forecast(context.Background(), session.Session{})
	require.NoError(t, err)

	m := failing.Metrics()
	assert.Equal(t, int64(1), m.Calls)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, 100.0, m.ErrorRate())

	m = other.Metrics()
	assert.Equal(t, int64(1), m.Calls)
	assert.Zero(t, m.Errors)
	assert.Zero(t, m.ErrorRate())
}
