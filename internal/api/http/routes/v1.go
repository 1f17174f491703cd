package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/prism-infra/prism-sync/internal/api/http"
	"github.com/prism-infra/prism-sync/internal/api/http/middleware"
	"github.com/prism-infra/prism-sync/internal/listview"
	listviewhttp "github.com/prism-infra/prism-sync/internal/listview/http"
)

// SessionStore resolves, creates and deletes stored sessions.
type SessionStore interface {
	middleware.SessionStore
	httpapi.SessionRepository
}

type V1Deps struct {
	Sessions  SessionStore
	Auth      httpapi.Authenticator
	ML        httpapi.MLClient
	Simulator httpapi.Simulator
	Registry  *listview.Registry
	Runs      listviewhttp.RunLister
	Logger    *zap.Logger
}

func RegisterV1(r *gin.Engine, dep V1Deps) {
	api := r.Group("/api/v1")

	sessionHandler := httpapi.NewSessionHandler(dep.Sessions, dep.Auth, dep.Registry, dep.Logger)
	sessionHandler.RegisterPublic(api)

	scoped := api.Group("")
	var forget middleware.Forgetter
	if dep.Registry != nil {
		forget = dep.Registry
	}
	scoped.Use(middleware.SessionMiddleware(dep.Sessions, forget))
	sessionHandler.Register(scoped)

	projectsGroup := scoped.Group("/projects")
	listviewhttp.New(dep.Registry, dep.Runs, dep.Logger).Register(projectsGroup)

	mlHandler := httpapi.NewMLHandler(dep.ML, dep.Simulator, dep.Logger)
	mlHandler.RegisterProjectRoutes(projectsGroup)
	mlHandler.Register(scoped)
}
