package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/stages"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

type fakeProvider struct {
	calls   atomic.Int32
	respond func(n int32, req llm.CompletionRequest) (string, error)
	block   bool
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                    { return "fake" }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	text, err := f.respond(n, req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: text, ModelName: req.Model}, nil
}

func dhundh() models.ProjectContext {
	return models.ProjectContext{
		ProjectID: "p-1",
		Title:     "Dhundh",
		Logline:   "A Mumbai cop hunts a killer who only strikes during monsoon fog.",
		Genre:     "Thriller",
		Tone:      "Noir",
		Artifacts: map[models.Stage]string{},
	}
}

func newTestGenerator(t *testing.T, opts Options, p llm.Provider) *Generator {
	t.Helper()
	catalog, err := stages.Default()
	require.NoError(t, err)
	var set *llm.ProviderSet
	if p != nil {
		set = llm.NewStaticProviderSet(map[string]llm.Provider{"openai": p})
	}
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = "gpt-5-mini"
	}
	return New(opts, catalog, set, utils.NewLogger(io.Discard, utils.DEBUG))
}

func assertBatchShape(t *testing.T, batch *models.GenerationBatch) {
	t.Helper()
	require.Len(t, batch.Candidates, models.CandidatesPerBatch)
	ids := map[string]bool{}
	texts := map[string]bool{}
	for i, c := range batch.Candidates {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		assert.Equal(t, i, c.Index)
		assert.True(t, strings.HasPrefix(c.ID, fmt.Sprintf("opt%d-", i+1)), c.ID)
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		assert.False(t, texts[c.Text], "duplicate text in slot %d", i)
		ids[c.ID] = true
		texts[c.Text] = true
	}
	assert.NotEmpty(t, batch.ID)
}

func TestGenerateTemplateWhenModelDisabled(t *testing.T) {
	p := &fakeProvider{respond: func(int32, llm.CompletionRequest) (string, error) { return "never", nil }}
	g := newTestGenerator(t, Options{UseModel: false}, p)

	for _, stage := range models.GeneratableStages() {
		batch, err := g.Generate(context.Background(), dhundh(), stage, "", "")
		require.NoError(t, err, stage)
		assertBatchShape(t, batch)
		assert.True(t, batch.Fallback)
		for _, c := range batch.Candidates {
			assert.Equal(t, models.SourceTemplate, c.Meta.Source)
			assert.Equal(t, string(llm.ReasonModelDisabled), c.Meta.FallbackReason)
			assert.Contains(t, c.Text, "Dhundh")
		}
	}
	assert.Zero(t, p.calls.Load())
}

func TestGenerateTemplateIsDeterministicApartFromIDs(t *testing.T) {
	g := newTestGenerator(t, Options{}, nil)

	a, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "more rain", "")
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "more rain", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	for i := range a.Candidates {
		assert.Equal(t, a.Candidates[i].Text, b.Candidates[i].Text)
		assert.NotEqual(t, a.Candidates[i].ID, b.Candidates[i].ID)
		assert.Equal(t, "more rain", a.Candidates[i].Tweak)
	}
}

func TestGenerateUsesProvider(t *testing.T) {
	p := &fakeProvider{respond: func(n int32, req llm.CompletionRequest) (string, error) {
		assert.Contains(t, req.Prompt, "Dhundh")
		return fmt.Sprintf("Option %d: Act I fog falls.\n1. The first body.\n2. The chase %d.", n, n), nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "")
	require.NoError(t, err)
	assertBatchShape(t, batch)
	assert.False(t, batch.Fallback)
	assert.Equal(t, "gpt-5-mini", batch.Engine)
	for _, c := range batch.Candidates {
		assert.Equal(t, models.SourceModel, c.Meta.Source)
		assert.Equal(t, "gpt-5-mini", c.Meta.Model)
		assert.False(t, strings.HasPrefix(c.Text, "Option"))
		assert.Len(t, c.Meta.Beats, 3)
	}
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestGenerateFallsBackPerSlot(t *testing.T) {
	p := &fakeProvider{respond: func(_ int32, req llm.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Cold open"):
			return "", errors.New("boom")
		case strings.Contains(req.Prompt, "Dual timeline"):
			return "   ", nil
		}
		return "A model outline with Act I and a climax.", nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "")
	require.NoError(t, err)
	assertBatchShape(t, batch)
	assert.True(t, batch.Fallback)

	assert.Equal(t, models.SourceModel, batch.Candidates[0].Meta.Source)
	assert.Equal(t, string(llm.ReasonProviderError), batch.Candidates[1].Meta.FallbackReason)
	assert.Equal(t, string(llm.ReasonEmptyCompletion), batch.Candidates[2].Meta.FallbackReason)
}

func TestGenerateReplacesDuplicateCompletions(t *testing.T) {
	p := &fakeProvider{respond: func(int32, llm.CompletionRequest) (string, error) {
		return "The same outline every time.", nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "")
	require.NoError(t, err)
	assertBatchShape(t, batch)

	var model, dup int
	for _, c := range batch.Candidates {
		if c.Meta.Source == models.SourceModel {
			model++
		} else if c.Meta.FallbackReason == string(llm.ReasonDuplicate) {
			dup++
		}
	}
	assert.Equal(t, 1, model)
	assert.Equal(t, 2, dup)
}

func TestGenerateReplacesCompletionsThatCleanToNothing(t *testing.T) {
	p := &fakeProvider{respond: func(_ int32, req llm.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Cold open"):
			return "```", nil
		case strings.Contains(req.Prompt, "Dual timeline"):
			return "Option 2:", nil
		}
		return "A real outline body with Act I and a climax.", nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "")
	require.NoError(t, err)
	assertBatchShape(t, batch)
	assert.True(t, batch.Fallback)

	assert.Equal(t, models.SourceModel, batch.Candidates[0].Meta.Source)
	assert.Equal(t, "A real outline body with Act I and a climax.", batch.Candidates[0].Text)
	for _, c := range batch.Candidates[1:] {
		assert.Equal(t, models.SourceTemplate, c.Meta.Source)
		assert.Equal(t, string(llm.ReasonEmptyCompletion), c.Meta.FallbackReason)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```", ""},
		{"```markdown\n```", ""},
		{"Option 1:", ""},
		{"  opt b) ", ""},
		{"```\nOption 3: Act I opens in fog.\n```", "Act I opens in fog."},
		{"Plain text", "Plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanCompletion(tt.in), "input %q", tt.in)
	}
}

func TestGenerateTimeout(t *testing.T) {
	p := &fakeProvider{block: true}
	g := newTestGenerator(t, Options{UseModel: true, Timeout: 30 * time.Millisecond, Retries: 2}, p)

	start := time.Now()
	batch, err := g.Generate(context.Background(), dhundh(), models.StageScenes, "", "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assertBatchShape(t, batch)
	for _, c := range batch.Candidates {
		assert.Equal(t, string(llm.ReasonTimeout), c.Meta.FallbackReason)
	}
}

func TestGenerateRetriesRetryableErrors(t *testing.T) {
	var mu sync.Mutex
	failed := map[string]bool{}
	p := &fakeProvider{respond: func(_ int32, req llm.CompletionRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if !failed[req.Prompt] {
			failed[req.Prompt] = true
			return "", &llm.APIError{Provider: "fake", StatusCode: 503}
		}
		return "Recovered outline for prompt " + fmt.Sprint(len(failed)) + " " + req.Prompt, nil
	}}
	g := newTestGenerator(t, Options{UseModel: true, Retries: 2, RetryInterval: time.Millisecond}, p)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "")
	require.NoError(t, err)
	assertBatchShape(t, batch)
	for _, c := range batch.Candidates {
		assert.Equal(t, models.SourceModel, c.Meta.Source)
	}
	assert.EqualValues(t, 6, p.calls.Load())
}

func TestGenerateMissingProviderAndTemplateEngine(t *testing.T) {
	g := newTestGenerator(t, Options{UseModel: true}, nil)

	batch, err := g.Generate(context.Background(), dhundh(), models.StageOutline, "", "claude")
	require.NoError(t, err)
	assert.Equal(t, string(llm.ReasonProviderUnavailable), batch.Candidates[0].Meta.FallbackReason)

	batch, err = g.Generate(context.Background(), dhundh(), models.StageOutline, "", "template")
	require.NoError(t, err)
	assert.Equal(t, string(llm.ReasonTemplateEngine), batch.Candidates[0].Meta.FallbackReason)
}

func TestGenerateHardErrors(t *testing.T) {
	g := newTestGenerator(t, Options{}, nil)
	ctx := context.Background()

	_, err := g.Generate(ctx, dhundh(), models.StageIdea, "", "")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = g.Generate(ctx, dhundh(), models.StageDone, "", "")
	assert.True(t, apperrors.IsValidationError(err))

	pc := dhundh()
	pc.Logline = "  "
	_, err = g.Generate(ctx, pc, models.StageOutline, "", "")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = g.Generate(ctx, dhundh(), models.StageOutline, strings.Repeat("x", MaxTweakLength+1), "")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = g.Generate(ctx, dhundh(), models.StageOutline, strings.Repeat("x", MaxTweakLength), "")
	assert.NoError(t, err)

	_, err = g.Generate(ctx, dhundh(), models.StageOutline, "", "davinci")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestResolveEngine(t *testing.T) {
	g := newTestGenerator(t, Options{DefaultEngine: "gpt-5"}, nil)

	e, err := g.ResolveEngine("", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", e.ID)

	e, err = g.ResolveEngine("", "claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", e.ID)

	e, err = g.ResolveEngine("template", "claude")
	require.NoError(t, err)
	assert.Equal(t, llm.EngineTemplate, e.ID)
}

func TestParseBeats(t *testing.T) {
	text := "Act I: the fog\n1. body found\n- a chase\nplain prose\nScene 4: rooftop"
	assert.Equal(t, []string{"the fog", "body found", "a chase", "rooftop"}, ParseBeats(text))
	assert.Empty(t, ParseBeats("no structure here"))
}
