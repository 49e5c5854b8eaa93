package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/autosave"
	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/generator"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/quality"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/stages"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/storage"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.WorkflowEvent
}

func (r *recordingNotifier) Publish(e models.WorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	wf       *Workflow
	store    *storage.MemoryStore
	agent    *autosave.Agent
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := stages.Default()
	require.NoError(t, err)
	logger := utils.NewLogger(io.Discard, utils.DEBUG)
	store := storage.NewMemoryStore()
	agent := autosave.New(store, autosave.Options{Enabled: true}, logger)
	notifier := &recordingNotifier{}

	wf := New(Deps{
		Store:     store,
		Generator: generator.New(generator.Options{DefaultEngine: "gpt-5-mini"}, catalog, nil, logger),
		Scorer:    quality.NewScorer(catalog),
		Autosave:  agent,
		Notifier:  notifier,
		Logger:    logger,
	})
	t.Cleanup(func() {
		wf.Close()
		_ = agent.Close(context.Background())
	})
	return &fixture{wf: wf, store: store, agent: agent, notifier: notifier}
}

func (f *fixture) create(t *testing.T, owner string) *models.Project {
	t.Helper()
	p, err := f.wf.CreateProject(context.Background(), owner, models.ProjectInput{
		Title:   "Dhundh",
		Logline: "A detective hunts a ghost in Mumbai's monsoon",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) generate(t *testing.T, p *models.Project, stage models.Stage) *models.GenerationBatch {
	t.Helper()
	b, err := f.wf.RequestGeneration(context.Background(), GenerateRequest{
		ProjectID: p.ID, OwnerID: p.OwnerID, Stage: stage,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) choose(p *models.Project, stage models.Stage, id, edits string) (*CommitResult, error) {
	return f.wf.CommitChoice(context.Background(), ChooseRequest{
		ProjectID: p.ID, OwnerID: p.OwnerID, Stage: stage, CandidateID: id, Edits: edits,
	})
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	assert.Equal(t, models.StageOutline, p.Stage)
	assert.Equal(t, "gpt-5-mini", p.Engine)
	assert.Equal(t, "en", p.Language)
	assert.True(t, p.HasArtifact(models.StageIdea))

	_, err := f.wf.CreateProject(context.Background(), "alice", models.ProjectInput{Title: "D", Logline: "long enough"})
	assert.True(t, apperrors.IsValidationError(err))
	_, err = f.wf.CreateProject(context.Background(), "alice", models.ProjectInput{Title: "Dhundh", Logline: "Fog"})
	assert.True(t, apperrors.IsValidationError(err))
	_, err = f.wf.CreateProject(context.Background(), "alice", models.ProjectInput{Title: "Dhundh", Logline: "Fog rolls in", Engine: "davinci"})
	assert.True(t, apperrors.IsValidationError(err))

	list, err := f.wf.ListProjects(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDhundhScenario(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	batch := f.generate(t, p, models.StageOutline)
	require.Len(t, batch.Candidates, models.CandidatesPerBatch)
	chosen := batch.Candidates[1]

	res, err := f.choose(p, models.StageOutline, chosen.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StageOnePager, res.Next)
	assert.Equal(t, models.StageOnePager, res.Project.Stage)
	assert.Equal(t, chosen.Text, res.Project.ArtifactText(models.StageOutline))
	assert.False(t, res.Artifact.Edited)
	assert.Equal(t, "autosave-"+p.ID+"-outline", res.DocID)
	assert.NotEmpty(t, res.Quality.Label)

	require.NoError(t, f.agent.Close(context.Background()))
	rec, err := f.store.GetAutosave(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, chosen.Text, rec.Text)

	assert.Equal(t, []string{models.EventBatchGenerated, models.EventChoiceCommitted}, f.notifier.types())
}

func TestEditsReplaceCandidateText(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")
	batch := f.generate(t, p, models.StageOutline)

	res, err := f.choose(p, models.StageOutline, batch.Candidates[0].ID, "My own outline.")
	require.NoError(t, err)
	assert.Equal(t, "My own outline.", res.Project.ArtifactText(models.StageOutline))
	assert.True(t, res.Artifact.Edited)

	// whitespace-only edits keep the candidate text
	res, err = f.choose(p, models.StageOutline, batch.Candidates[2].ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, batch.Candidates[2].Text, res.Project.ArtifactText(models.StageOutline))
}

func TestRegenerationInvalidatesOlderBatches(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	var batches []*models.GenerationBatch
	for i := 0; i < 3; i++ {
		batches = append(batches, f.generate(t, p, models.StageOutline))
	}
	for _, old := range batches[:2] {
		for _, c := range old.Candidates {
			_, err := f.choose(p, models.StageOutline, c.ID, "")
			assert.True(t, apperrors.IsUnknownCandidateError(err))
		}
	}
	_, err := f.choose(p, models.StageOutline, batches[2].Candidates[0].ID, "")
	assert.NoError(t, err)
}

func TestCommitDropsBatchesThatCanNoLongerBeChosen(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	outline := f.generate(t, p, models.StageOutline)
	_, err := f.choose(p, models.StageOutline, outline.Candidates[0].ID, "")
	require.NoError(t, err)
	_, ok := f.wf.LatestBatch(p.ID, models.StageOutline)
	assert.True(t, ok, "outline stays revisable while the pointer is at onepager")

	onePager := f.generate(t, p, models.StageOnePager)
	_, err = f.choose(p, models.StageOnePager, onePager.Candidates[1].ID, "")
	require.NoError(t, err)

	_, ok = f.wf.LatestBatch(p.ID, models.StageOutline)
	assert.False(t, ok)
	_, ok = f.wf.LatestBatch(p.ID, models.StageOnePager)
	assert.True(t, ok)

	_, err = f.choose(p, models.StageOutline, outline.Candidates[0].ID, "")
	assert.True(t, apperrors.IsInvalidTransitionError(err))
}

func TestCommitTwiceNeverDoubleAdvances(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")
	batch := f.generate(t, p, models.StageOutline)
	id := batch.Candidates[0].ID

	first, err := f.choose(p, models.StageOutline, id, "")
	require.NoError(t, err)
	second, err := f.choose(p, models.StageOutline, id, "")
	require.NoError(t, err)
	assert.Equal(t, first.Next, second.Next)
	assert.Equal(t, models.StageOnePager, second.Project.Stage)
	assert.Equal(t, first.Artifact.Text, second.Artifact.Text)

	f.generate(t, p, models.StageOutline)
	_, err = f.choose(p, models.StageOutline, id, "")
	assert.True(t, apperrors.IsUnknownCandidateError(err))

	stored, err := f.wf.GetProject(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageOnePager, stored.Stage)
}

func TestStageSkipsAreRejected(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	_, err := f.wf.RequestGeneration(context.Background(), GenerateRequest{
		ProjectID: p.ID, OwnerID: "alice", Stage: models.StageTreatment,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransitionError(err))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeStageSkipped, appErr.Code)

	_, err = f.wf.RequestGeneration(context.Background(), GenerateRequest{
		ProjectID: p.ID, OwnerID: "alice", Stage: models.StageOnePager,
	})
	assert.True(t, apperrors.IsInvalidTransitionError(err))

	_, err = f.wf.RequestGeneration(context.Background(), GenerateRequest{
		ProjectID: p.ID, OwnerID: "alice", Stage: models.StageIdea,
	})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = f.choose(p, models.StageOnePager, "opt1-whatever", "")
	assert.True(t, apperrors.IsInvalidTransitionError(err))
}

func TestMissingAndForeignProjects(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	for _, req := range []GenerateRequest{
		{ProjectID: "nope", OwnerID: "alice", Stage: models.StageOutline},
		{ProjectID: p.ID, OwnerID: "mallory", Stage: models.StageOutline},
	} {
		_, err := f.wf.RequestGeneration(context.Background(), req)
		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperrors.ErrorTypeInvalidTransition, appErr.Type)
		assert.Equal(t, CodeProjectNotFound, appErr.Code)
	}

	_, err := f.wf.GetProject(context.Background(), "mallory", p.ID)
	assert.True(t, apperrors.IsInvalidTransitionError(err))
}

func TestFullPipelineAndTerminalReentry(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	for _, stage := range models.GeneratableStages() {
		batch := f.generate(t, p, stage)
		res, err := f.choose(p, stage, batch.Candidates[0].ID, "")
		require.NoError(t, err, stage)
		assert.Equal(t, stage.Next(), res.Next)
		// context for the next stage includes this artifact
		if stage.Next().Generatable() {
			stored, err := f.wf.GetProject(context.Background(), "alice", p.ID)
			require.NoError(t, err)
			assert.Equal(t, batch.Candidates[0].Text, models.ContextFor(stored, stage.Next()).Previous(stage.Next()))
		}
	}

	stored, err := f.wf.GetProject(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, stored.Stage)
	assert.Len(t, stored.History, len(models.GeneratableStages()))

	// the terminal stage can be regenerated and recommitted
	batch := f.generate(t, p, models.StageDialogue)
	res, err := f.choose(p, models.StageDialogue, batch.Candidates[2].ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, res.Next)

	// earlier stages stay closed
	_, err = f.wf.RequestGeneration(context.Background(), GenerateRequest{
		ProjectID: p.ID, OwnerID: "alice", Stage: models.StageScenes,
	})
	assert.True(t, apperrors.IsInvalidTransitionError(err))
}

func TestRegenerateInPlaceKeepsCommit(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")
	batch := f.generate(t, p, models.StageOutline)
	_, err := f.choose(p, models.StageOutline, batch.Candidates[0].ID, "")
	require.NoError(t, err)

	f.generate(t, p, models.StageOutline)
	stored, err := f.wf.GetProject(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Candidates[0].Text, stored.ArtifactText(models.StageOutline))
	assert.Equal(t, models.StageOnePager, stored.Stage)
}

func TestConcurrentCommitsAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")
	batch := f.generate(t, p, models.StageOutline)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.choose(p, models.StageOutline, batch.Candidates[i%3].ID, "")
		}(i)
	}
	wg.Wait()

	stored, err := f.wf.GetProject(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageOnePager, stored.Stage)
}

func TestGeneratePitchAutosaves(t *testing.T) {
	f := newFixture(t)
	pack, err := f.wf.GeneratePitch(context.Background(), "alice", models.PitchRequest{
		Title: "Dhundh", Logline: "A detective hunts a ghost in Mumbai's monsoon",
	})
	require.NoError(t, err)
	require.NotNil(t, pack.Quality)
	require.NotEmpty(t, pack.DocID)

	require.NoError(t, f.agent.Close(context.Background()))
	rec, err := f.store.GetAutosave(context.Background(), pack.DocID)
	require.NoError(t, err)
	assert.Equal(t, autosave.PitchStage, rec.Stage)
}

func TestLockManagerCleanup(t *testing.T) {
	lm := NewLockManager(time.Hour, time.Nanosecond)
	defer lm.Close()

	require.NoError(t, lm.ExecuteWithProjectLock("a", func() error { return nil }))
	require.NoError(t, lm.ExecuteWithProjectLock("b", func() error { return nil }))
	assert.Equal(t, 2, lm.Len())

	time.Sleep(time.Millisecond)
	assert.Zero(t, lm.cleanupUnusedLocks(false))
	assert.Equal(t, 2, lm.cleanupUnusedLocks(true))
	assert.Zero(t, lm.Len())

	sentinel := errors.New("boom")
	assert.ErrorIs(t, lm.ExecuteWithProjectLock("a", func() error { return sentinel }), sentinel)
}
