// Package workflow is the stage state machine. It owns the project's stage
// pointer and the latest candidate batch per (project, stage), and is the
// only writer of committed artifacts.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/autosave"
	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/generator"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/quality"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/storage"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

// Error codes carried on AppError for the HTTP layer.
const (
	CodeProjectNotFound = "PROJECT_NOT_FOUND"
	CodeStageSkipped    = "STAGE_SKIPPED"
	CodeStageConflict   = "STAGE_CONFLICT"
	CodeStaleCandidate  = "STALE_CANDIDATE"
)

// Notifier receives workflow events. Implementations must not block.
type Notifier interface {
	Publish(event models.WorkflowEvent)
}

// GenerateRequest asks for a new batch.
type GenerateRequest struct {
	ProjectID string
	OwnerID   string
	Stage     models.Stage
	Tweak     string
	Engine    string
}

// ChooseRequest commits one candidate of the latest batch.
type ChooseRequest struct {
	ProjectID   string
	OwnerID     string
	Stage       models.Stage
	CandidateID string
	Edits       string
}

// CommitResult is what a successful commit returns.
type CommitResult struct {
	Project  *models.Project
	Artifact models.ChosenArtifact
	Next     models.Stage
	Quality  models.QualityRecord
	DocID    string
}

// Workflow coordinates the generator, the store and the autosave agent.
type Workflow struct {
	store     storage.ProjectStore
	generator *generator.Generator
	scorer    *quality.Scorer
	autosave  *autosave.Agent
	notifier  Notifier
	locks     *LockManager
	logger    *utils.FieldLogger
	now       func() time.Time

	batchMu sync.Mutex
	batches map[string]*models.GenerationBatch // key: project|stage
}

// Deps are the collaborators of a Workflow. Notifier and Autosave may be nil.
type Deps struct {
	Store     storage.ProjectStore
	Generator *generator.Generator
	Scorer    *quality.Scorer
	Autosave  *autosave.Agent
	Notifier  Notifier
	Logger    *utils.Logger
}

func New(deps Deps) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Workflow{
		store:     deps.Store,
		generator: deps.Generator,
		scorer:    deps.Scorer,
		autosave:  deps.Autosave,
		notifier:  deps.Notifier,
		locks:     NewLockManager(0, 0),
		logger:    logger.WithFields(map[string]interface{}{"component": "workflow"}),
		now:       func() time.Time { return time.Now().UTC() },
		batches:   make(map[string]*models.GenerationBatch),
	}
}

// Close releases background resources.
func (w *Workflow) Close() {
	w.locks.Close()
}

func batchKey(projectID string, stage models.Stage) string {
	return projectID + "|" + string(stage)
}

// CreateProject validates input, seeds the idea artifact and stores the
// project with its pointer on the first generatable stage.
func (w *Workflow) CreateProject(ctx context.Context, ownerID string, in models.ProjectInput) (*models.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Logline = strings.TrimSpace(in.Logline)
	if n := utf8.RuneCountInString(in.Title); n < 2 || n > 120 {
		return nil, apperrors.NewValidationError("title must be between 2 and 120 characters", nil)
	}
	if n := utf8.RuneCountInString(in.Logline); n < 5 || n > 400 {
		return nil, apperrors.NewValidationError("logline must be between 5 and 400 characters", nil)
	}
	engine, err := w.generator.ResolveEngine(in.Engine, "")
	if err != nil {
		return nil, err
	}
	lang := strings.TrimSpace(in.Language)
	if lang == "" {
		lang = "en"
	}

	now := w.now()
	p := &models.Project{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Logline:     in.Logline,
		Genre:       strings.TrimSpace(in.Genre),
		Tone:        strings.TrimSpace(in.Tone),
		CreatorName: strings.TrimSpace(in.CreatorName),
		OwnerID:     ownerID,
		Language:    lang,
		Engine:      engine.ID,
		Stage:       models.StageIdea.Next(),
		Artifacts: map[models.Stage]*models.ChosenArtifact{
			models.StageIdea: {
				Stage:       models.StageIdea,
				Text:        in.Title + "\n" + in.Logline,
				CommittedAt: now,
			},
		},
		History:   []models.ArtifactRevision{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.store.CreateProject(ctx, p); err != nil {
		return nil, apperrors.NewPersistenceError("could not create project", err)
	}
	w.logger.Info("project created", map[string]interface{}{
		"project_id": p.ID, "owner": ownerID, "engine": p.Engine,
	})
	return p, nil
}

// GetProject returns the caller's project. Foreign projects look missing.
func (w *Workflow) GetProject(ctx context.Context, ownerID, projectID string) (*models.Project, error) {
	return w.loadOwned(ctx, ownerID, projectID)
}

// ListProjects returns the caller's projects ordered by title.
func (w *Workflow) ListProjects(ctx context.Context, ownerID string) ([]*models.Project, error) {
	ps, err := w.store.ListProjects(ctx, ownerID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("could not list projects", err)
	}
	return ps, nil
}

func (w *Workflow) loadOwned(ctx context.Context, ownerID, projectID string) (*models.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, apperrors.NewValidationError("project_id is required", nil)
	}
	p, err := w.store.GetProject(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && p.OwnerID != ownerID) {
		return nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("project %s does not exist", projectID), nil).WithCode(CodeProjectNotFound)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("could not load project", err)
	}
	return p, nil
}

// checkStage allows the current pointer and the most recently committed stage.
func checkStage(p *models.Project, stage models.Stage) error {
	if !stage.Generatable() {
		return apperrors.NewValidationError(fmt.Sprintf("stage %q is not a workflow stage", stage), nil)
	}
	if stage == p.Stage {
		return nil
	}
	if stage.Next() == p.Stage && p.HasArtifact(stage) {
		return nil
	}
	return apperrors.NewInvalidTransitionError(
		fmt.Sprintf("stage %s is not available; project is at %s", stage, p.Stage), nil).WithCode(CodeStageSkipped)
}

func laterOf(a, b models.Stage) models.Stage {
	if a.Index() >= b.Index() {
		return a
	}
	return b
}

// RequestGeneration produces a new batch and makes it the only one eligible
// for commit. The provider call runs without holding the project lock.
func (w *Workflow) RequestGeneration(ctx context.Context, req GenerateRequest) (*models.GenerationBatch, error) {
	var pc models.ProjectContext
	var engineID string
	err := w.locks.ExecuteWithProjectLock(req.ProjectID, func() error {
		p, err := w.loadOwned(ctx, req.OwnerID, req.ProjectID)
		if err != nil {
			return err
		}
		if err := checkStage(p, req.Stage); err != nil {
			return err
		}
		engine, err := w.generator.ResolveEngine(req.Engine, p.Engine)
		if err != nil {
			return err
		}
		engineID = engine.ID
		pc = models.ContextFor(p, req.Stage)
		return generator.ValidateRequest(pc, req.Stage, req.Tweak)
	})
	if err != nil {
		return nil, err
	}

	batch, err := w.generator.Generate(ctx, pc, req.Stage, req.Tweak, engineID)
	if err != nil {
		return nil, err
	}

	err = w.locks.ExecuteWithProjectLock(req.ProjectID, func() error {
		p, err := w.loadOwned(ctx, req.OwnerID, req.ProjectID)
		if err != nil {
			return err
		}
		if err := checkStage(p, req.Stage); err != nil {
			return err
		}
		w.batchMu.Lock()
		w.batches[batchKey(req.ProjectID, req.Stage)] = batch
		w.batchMu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("batch generated", map[string]interface{}{
		"project_id": req.ProjectID,
		"stage":      req.Stage,
		"batch_id":   batch.ID,
		"engine":     batch.Engine,
		"fallback":   batch.Fallback,
	})
	w.publish(models.WorkflowEvent{
		Type:      models.EventBatchGenerated,
		ProjectID: req.ProjectID,
		Stage:     req.Stage,
		BatchID:   batch.ID,
		Fallback:  batch.Fallback,
		Timestamp: w.now(),
	})
	return batch, nil
}

// pruneBatches drops batches for stages that checkStage would now reject.
func (w *Workflow) pruneBatches(projectID string, pointer models.Stage) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	for _, stage := range models.GeneratableStages() {
		if stage == pointer || stage.Next() == pointer {
			continue
		}
		delete(w.batches, batchKey(projectID, stage))
	}
}

// LatestBatch returns the batch currently eligible for commit, if any.
func (w *Workflow) LatestBatch(projectID string, stage models.Stage) (*models.GenerationBatch, bool) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	b, ok := w.batches[batchKey(projectID, stage)]
	return b, ok
}

// CommitChoice commits a candidate of the latest batch (or the caller's
// edits) and advances the pointer to max(pointer, stage+1).
func (w *Workflow) CommitChoice(ctx context.Context, req ChooseRequest) (*CommitResult, error) {
	if strings.TrimSpace(req.CandidateID) == "" {
		return nil, apperrors.NewValidationError("chosen_id is required", nil)
	}

	var result *CommitResult
	err := w.locks.ExecuteWithProjectLock(req.ProjectID, func() error {
		p, err := w.loadOwned(ctx, req.OwnerID, req.ProjectID)
		if err != nil {
			return err
		}
		if err := checkStage(p, req.Stage); err != nil {
			return err
		}

		batch, _ := w.LatestBatch(req.ProjectID, req.Stage)
		candidate, ok := batch.FindCandidate(req.CandidateID)
		if !ok {
			return apperrors.NewUnknownCandidateError(
				fmt.Sprintf("candidate %s is not in the latest batch for %s; generate again", req.CandidateID, req.Stage), nil).
				WithCode(CodeStaleCandidate)
		}
		if batch.Engine != p.Engine {
			w.logger.Warn("committing batch generated with a different engine", map[string]interface{}{
				"project_id":     p.ID,
				"stage":          req.Stage,
				"batch_engine":   batch.Engine,
				"project_engine": p.Engine,
			})
		}

		text := candidate.Text
		edited := strings.TrimSpace(req.Edits) != ""
		if edited {
			text = req.Edits
		}
		artifact := models.ChosenArtifact{
			Stage:       req.Stage,
			Text:        text,
			CandidateID: candidate.ID,
			BatchID:     batch.ID,
			Edited:      edited,
			Engine:      batch.Engine,
			CommittedAt: w.now(),
		}
		next := laterOf(p.Stage, req.Stage.Next())

		updated, err := w.store.CommitArtifact(ctx, p.ID, p.Stage, next, artifact)
		switch {
		case errors.Is(err, storage.ErrStageConflict):
			return apperrors.NewConflictError("project stage changed concurrently; reload and retry", err).
				WithCode(CodeStageConflict)
		case errors.Is(err, storage.ErrNotFound):
			return apperrors.NewInvalidTransitionError(
				fmt.Sprintf("project %s does not exist", p.ID), err).WithCode(CodeProjectNotFound)
		case err != nil:
			return apperrors.NewPersistenceError("could not commit artifact", err)
		}
		result = &CommitResult{Project: updated, Artifact: artifact, Next: next}
		w.pruneBatches(p.ID, updated.Stage)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Quality = w.scorer.Score(result.Artifact.Text, req.Stage)
	if w.autosave.Enabled() {
		result.DocID = w.autosave.Record(req.ProjectID, req.OwnerID, req.Stage, result.Artifact.Text, result.Quality)
	}

	w.logger.Info("choice committed", map[string]interface{}{
		"project_id":   req.ProjectID,
		"stage":        req.Stage,
		"candidate_id": req.CandidateID,
		"edited":       result.Artifact.Edited,
		"next":         result.Next,
		"quality":      result.Quality.Label,
	})
	q := result.Quality
	w.publish(models.WorkflowEvent{
		Type:        models.EventChoiceCommitted,
		ProjectID:   req.ProjectID,
		Stage:       req.Stage,
		BatchID:     result.Artifact.BatchID,
		CandidateID: req.CandidateID,
		Next:        result.Next,
		Quality:     &q,
		Timestamp:   w.now(),
	})
	return result, nil
}

// GeneratePitch runs the one-shot pitch generator and autosaves the result.
func (w *Workflow) GeneratePitch(ctx context.Context, ownerID string, req models.PitchRequest) (*models.PitchPack, error) {
	pack, err := w.generator.GeneratePitch(ctx, req)
	if err != nil {
		return nil, err
	}
	q := quality.ScorePitch(req, pack)
	pack.Quality = &q
	if w.autosave.Enabled() {
		pack.DocID = autosave.PitchDocumentID(ownerID, req.Title, req.Logline)
		w.autosave.RecordPitch(pack.DocID, ownerID, pack)
	}
	return pack, nil
}

func (w *Workflow) publish(event models.WorkflowEvent) {
	if w.notifier != nil {
		w.notifier.Publish(event)
	}
}
