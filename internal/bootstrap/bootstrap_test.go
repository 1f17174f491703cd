package bootstrap

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/config"
	"github.com/prism-infra/prism-sync/internal/api/http/routes"
	"github.com/prism-infra/prism-sync/internal/listview"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
	"github.com/prism-infra/prism-sync/internal/whatif"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	_, err = NewLogger("development", "loud")
	assert.Error(t, err)
}

func TestOpenDBRejectsBadDSN(t *testing.T) {
	_, err := OpenDB(context.Background(), DBOptions{})
	assert.ErrorContains(t, err, "DB_DSN")

	_, err = OpenDB(context.Background(), DBOptions{DSN: "postgres://%zz"})
	assert.ErrorContains(t, err, "parse dsn")
}

func TestSetGinMode(t *testing.T) {
	defer gin.SetMode(gin.TestMode)

	SetGinMode("production")
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
	SetGinMode("test")
	assert.Equal(t, gin.TestMode, gin.Mode())
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	_, err = OpenRedis(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestBuildRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	client := remote.NewClient("http://127.0.0.1:0", 0)
	registry := listview.NewRegistry(listview.Deps{Store: client, Predictor: client})
	defer registry.Close()

	r := BuildRouter(RouterDeps{
		ServiceName: "prism-sync",
		Version:     "test",
		CORSOrigins: []string{"http://app.test"},
		Redis:       rdb,
		Remote:      client,
		V1: routes.V1Deps{
			Sessions:  session.NewRepository(rdb, 0),
			Auth:      client,
			ML:        client,
			Simulator: whatif.NewSimulator(client, 0, nil),
			Registry:  registry,
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://app.test")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://app.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeEndsEventStreamsOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer upstream.Close()

	client := remote.NewClient(upstream.URL, time.Second)
	registry := listview.NewRegistry(listview.Deps{Store: client, Predictor: client})
	defer registry.Close()

	router := BuildRouter(RouterDeps{
		ServiceName: "prism-sync",
		V1: routes.V1Deps{
			Sessions:  stubSessions{},
			Auth:      client,
			ML:        client,
			Simulator: whatif.NewSimulator(client, 0, nil),
			Registry:  registry,
		},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- Serve(ctx, &http.Server{Handler: router}, ln, 5*time.Second, nil, registry.Close)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/projects/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: initial", strings.TrimSpace(line))

	started := time.Now()
	cancel()

	select {
	case err := <-served:
		assert.NoError(t, err)
		assert.Less(t, time.Since(started), 2*time.Second, "stream must not hold shutdown until the deadline")
	case <-time.After(4 * time.Second):
		t.Fatal("shutdown waited on the open event stream")
	}
}

type stubSessions struct{}

func (stubSessions) Get(ctx context.Context, id string) (session.Session, error) {
	return session.Session{}, session.ErrSessionNotFound
}

func (stubSessions) Create(ctx context.Context, token, userID string) (session.Session, error) {
	return session.Session{ID: "s", Token: token, UserID: userID}, nil
}

func (stubSessions) Delete(ctx context.Context, id string) error { return nil }
