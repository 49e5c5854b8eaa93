// internal/api/handlers.go
package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/workflow"
)

// Handler serves the HTTP API.
type Handler struct {
	Workflow *workflow.Workflow
	Hub      *EventHub
	Response *ResponseHelper
	Info     HealthInfo
}

// HealthInfo is the non-secret runtime configuration reported by
// /health/config.
type HealthInfo struct {
	FrontendOrigin string   `json:"frontend_origin"`
	UseModel       bool     `json:"use_model"`
	Autosave       bool     `json:"autosave"`
	Engine         string   `json:"engine"`
	Store          string   `json:"store"`
	Providers      []string `json:"providers"`
}

// GenerateStageRequest is the body of POST /api/stage/generate.
type GenerateStageRequest struct {
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	Tweak     string `json:"tweak,omitempty"`
	Engine    string `json:"engine,omitempty"`
}

// ChooseStageRequest is the body of POST /api/stage/choose.
type ChooseStageRequest struct {
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	ChosenID  string `json:"chosen_id"`
	Edits     string `json:"edits,omitempty"`
}

// CandidateView is one candidate as returned to clients.
type CandidateView struct {
	ID   string               `json:"id"`
	Text string               `json:"text"`
	Meta models.CandidateMeta `json:"meta"`
}

// GenerateStageResponse is the body returned by POST /api/stage/generate.
type GenerateStageResponse struct {
	BatchID    string          `json:"batch_id"`
	ProjectID  string          `json:"project_id"`
	Stage      models.Stage    `json:"stage"`
	Engine     string          `json:"engine"`
	Fallback   bool            `json:"fallback"`
	Candidates []CandidateView `json:"candidates"`
}

// ChooseStageResponse is the body returned by POST /api/stage/choose.
type ChooseStageResponse struct {
	OK           bool                  `json:"ok"`
	Stage        models.Stage          `json:"stage"`
	Next         models.Stage          `json:"next"`
	CurrentStage models.Stage          `json:"current_stage"`
	Artifact     models.ChosenArtifact `json:"artifact"`
	Quality      models.QualityRecord  `json:"quality"`
	DocID        string                `json:"doc_id,omitempty"`
}

// Health answers GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{"ok": true})
}

// HealthConfig answers GET /health/config.
func (h *Handler) HealthConfig(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"ok":              true,
		"frontend_origin": h.Info.FrontendOrigin,
		"use_model":       h.Info.UseModel,
		"autosave":        h.Info.Autosave,
		"engine":          h.Info.Engine,
		"store":           h.Info.Store,
		"providers":       h.Info.Providers,
		"engines":         llm.EngineIDs(),
	})
}

// CreateProject answers POST /api/projects.
func (h *Handler) CreateProject(c *gin.Context) {
	var in models.ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.Response.BadRequest(c, ErrorCodeInvalidRequest, "request body must be a JSON object")
		return
	}
	userID, _ := GetUserFromContext(c)

	project, err := h.Workflow.CreateProject(c.Request.Context(), userID, in)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, project.Summary())
}

// ListProjects answers GET /api/projects.
func (h *Handler) ListProjects(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	projects, err := h.Workflow.ListProjects(c.Request.Context(), userID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	summaries := make([]models.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, p.Summary())
	}
	h.Response.Success(c, summaries)
}

// GetProject answers GET /api/projects/:id with the full record.
func (h *Handler) GetProject(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	project, err := h.Workflow.GetProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, project)
}

// GeneratePitch answers POST /api/pitch/generate.
func (h *Handler) GeneratePitch(c *gin.Context) {
	var req models.PitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorCodeInvalidRequest, "request body must be a JSON object")
		return
	}
	userID, _ := GetUserFromContext(c)

	pack, err := h.Workflow.GeneratePitch(c.Request.Context(), userID, req)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, pack)
}

// GenerateStage answers POST /api/stage/generate.
func (h *Handler) GenerateStage(c *gin.Context) {
	var req GenerateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorCodeInvalidRequest, "request body must be a JSON object")
		return
	}
	stage, ok := h.parseRequestTarget(c, req.ProjectID, req.Stage)
	if !ok {
		return
	}
	userID, _ := GetUserFromContext(c)

	batch, err := h.Workflow.RequestGeneration(c.Request.Context(), workflow.GenerateRequest{
		ProjectID: req.ProjectID,
		OwnerID:   userID,
		Stage:     stage,
		Tweak:     req.Tweak,
		Engine:    req.Engine,
	})
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	resp := GenerateStageResponse{
		BatchID:    batch.ID,
		ProjectID:  batch.ProjectID,
		Stage:      batch.Stage,
		Engine:     batch.Engine,
		Fallback:   batch.Fallback,
		Candidates: make([]CandidateView, 0, len(batch.Candidates)),
	}
	for _, cand := range batch.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateView{ID: cand.ID, Text: cand.Text, Meta: cand.Meta})
	}
	h.Response.Success(c, resp)
}

// ChooseStage answers POST /api/stage/choose.
func (h *Handler) ChooseStage(c *gin.Context) {
	var req ChooseStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorCodeInvalidRequest, "request body must be a JSON object")
		return
	}
	stage, ok := h.parseRequestTarget(c, req.ProjectID, req.Stage)
	if !ok {
		return
	}
	userID, _ := GetUserFromContext(c)

	result, err := h.Workflow.CommitChoice(c.Request.Context(), workflow.ChooseRequest{
		ProjectID:   req.ProjectID,
		OwnerID:     userID,
		Stage:       stage,
		CandidateID: req.ChosenID,
		Edits:       req.Edits,
	})
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	h.Response.Success(c, ChooseStageResponse{
		OK:           true,
		Stage:        stage,
		Next:         result.Next,
		CurrentStage: result.Project.Stage,
		Artifact:     result.Artifact,
		Quality:      result.Quality,
		DocID:        result.DocID,
	})
}

// parseRequestTarget validates the project id and stage common to the stage
// endpoints and writes a 400 when either is unusable.
func (h *Handler) parseRequestTarget(c *gin.Context, projectID, rawStage string) (models.Stage, bool) {
	if projectID == "" {
		h.Response.BadRequest(c, ErrorCodeInvalidRequest, "project_id is required")
		return "", false
	}
	stage, ok := models.ParseStage(rawStage)
	if !ok {
		h.Response.BadRequest(c, ErrorCodeInvalidStage, "unknown stage "+strconv.Quote(rawStage))
		return "", false
	}
	return stage, true
}
