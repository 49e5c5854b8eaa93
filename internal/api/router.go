// internal/api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/auth"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/workflow"
)

// RouterDeps are the collaborators the router wires into handlers.
type RouterDeps struct {
	Workflow      *workflow.Workflow
	Hub           *EventHub
	Verifier      *auth.Verifier
	Logger        *utils.Logger
	AllowedOrigin string
	Info          HealthInfo
	DebugMode     bool
}

// SetupRouter builds the gin engine with middleware and every route.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	response := NewResponseHelper(deps.Logger)
	handler := &Handler{
		Workflow: deps.Workflow,
		Hub:      deps.Hub,
		Response: response,
		Info:     deps.Info,
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		AccessLogMiddleware(deps.Logger),
		CORSMiddleware(deps.AllowedOrigin),
	)
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, ErrorCodeRouteNotFound, "route not found")
	})

	// public
	r.GET("/health/config", handler.HealthConfig)

	authed := AuthMiddleware(deps.Verifier, response)

	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)

		projects := api.Group("/projects", authed)
		{
			projects.POST("", handler.CreateProject)
			projects.GET("", handler.ListProjects)
			projects.GET("/:id", handler.GetProject)
		}

		api.POST("/pitch/generate", authed, handler.GeneratePitch)

		stage := api.Group("/stage", authed)
		{
			stage.POST("/generate", handler.GenerateStage)
			stage.POST("/choose", handler.ChooseStage)
		}
	}

	r.GET("/ws/projects/:id", authed, handler.ProjectEvents)

	return r
}
