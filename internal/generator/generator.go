// Package generator produces candidate batches for a stage, from a completion
// provider when one is available and from deterministic templates otherwise.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/stages"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/telemetry"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

// MaxTweakLength bounds the steering note, in characters.
const MaxTweakLength = 500

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Options is the immutable generation configuration.
type Options struct {
	UseModel      bool
	DefaultEngine string
	Temperature   float64
	Timeout       time.Duration // per provider call, including retries
	Retries       int
	RetryInterval time.Duration // first backoff interval
	MaxTokens     int
}

func (o Options) withDefaults() Options {
	if o.DefaultEngine == "" {
		o.DefaultEngine = llm.EngineTemplate
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 250 * time.Millisecond
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2048
	}
	return o
}

// Generator is stateless across calls; it only reads its configuration.
type Generator struct {
	opts      Options
	catalog   *stages.Catalog
	providers *llm.ProviderSet
	logger    *utils.FieldLogger
}

// New creates a Generator. providers may be nil, in which case every
// candidate comes from the template path.
func New(opts Options, catalog *stages.Catalog, providers *llm.ProviderSet, logger *utils.Logger) *Generator {
	if logger == nil {
		logger = utils.GetLogger()
	}
	genMetricsOnce.Do(initGenMetrics)
	return &Generator{
		opts:      opts.withDefaults(),
		catalog:   catalog,
		providers: providers,
		logger:    logger.WithFields(map[string]interface{}{"component": "generator"}),
	}
}

// UseModel reports whether model-backed generation is enabled.
func (g *Generator) UseModel() bool {
	return g.opts.UseModel
}

// ResolveEngine picks the engine for a request: the requested id, then the
// project engine, then the configured default.
func (g *Generator) ResolveEngine(requested, projectEngine string) (llm.Engine, error) {
	id := strings.TrimSpace(requested)
	if id == "" {
		id = projectEngine
	}
	if id == "" {
		id = g.opts.DefaultEngine
	}
	engine, ok := llm.LookupEngine(id)
	if !ok {
		return llm.Engine{}, apperrors.NewValidationError(
			fmt.Sprintf("unknown engine %q (supported: %s)", id, strings.Join(llm.EngineIDs(), ", ")), nil)
	}
	return engine, nil
}

// ValidateRequest checks the hard-error conditions of Generate.
func ValidateRequest(pc models.ProjectContext, stage models.Stage, tweak string) error {
	if !stage.Generatable() {
		return apperrors.NewValidationError(fmt.Sprintf("stage %q cannot be generated", stage), nil)
	}
	if strings.TrimSpace(pc.Title) == "" || strings.TrimSpace(pc.Logline) == "" {
		return apperrors.NewValidationError("project title and logline are required", nil)
	}
	if utf8.RuneCountInString(tweak) > MaxTweakLength {
		return apperrors.NewValidationError(fmt.Sprintf("tweak must be at most %d characters", MaxTweakLength), nil)
	}
	return nil
}

// Generate returns a batch of exactly models.CandidatesPerBatch non-empty
// candidates with fresh ids. Provider failures never surface as errors.
func (g *Generator) Generate(ctx context.Context, pc models.ProjectContext, stage models.Stage, tweak, engineID string) (*models.GenerationBatch, error) {
	if err := ValidateRequest(pc, stage, tweak); err != nil {
		return nil, err
	}
	engine, err := g.ResolveEngine(engineID, "")
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "generator.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("manthan.stage", string(stage)),
		attribute.String("manthan.engine", engine.ID),
	)

	tweak = strings.TrimSpace(tweak)
	data := stages.NewPromptData(pc, stage, tweak)

	results := make([]llm.ProviderResult, models.CandidatesPerBatch)
	var eg errgroup.Group
	eg.SetLimit(models.CandidatesPerBatch)
	for i := range results {
		eg.Go(func() error {
			results[i] = g.complete(ctx, engine, stage, data, i)
			return nil
		})
	}
	_ = eg.Wait()

	batch := &models.GenerationBatch{
		ID:        uuid.NewString(),
		ProjectID: pc.ProjectID,
		Stage:     stage,
		Tweak:     tweak,
		Engine:    engine.ID,
		CreatedAt: time.Now().UTC(),
	}

	seen := make(map[string]bool, len(results))
	for i, r := range results {
		text := strings.TrimSpace(r.Text)
		if r.OK() && seen[normalize(text)] {
			r = llm.Fallback(llm.ReasonDuplicate, nil)
		}

		meta := models.CandidateMeta{Variant: g.variantLabel(stage, i)}
		if r.OK() {
			meta.Source = models.SourceModel
			meta.Model = r.Model
		} else {
			text = g.fallbackText(stage, data, i)
			meta.Source = models.SourceTemplate
			meta.FallbackReason = string(r.Reason)
			batch.Fallback = true
			g.recordFallback(ctx, stage, i, r)
		}
		text = ensureUnique(text, seen, i)
		seen[normalize(text)] = true
		meta.Beats = ParseBeats(text)

		id, err := candidateID(i)
		if err != nil {
			return nil, fmt.Errorf("candidate id: %w", err)
		}
		batch.Candidates = append(batch.Candidates, models.Candidate{
			ID:    id,
			Text:  text,
			Meta:  meta,
			Index: i,
			Tweak: tweak,
		})
		genMetrics.candidates.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("source", meta.Source),
		))
	}

	span.SetAttributes(attribute.Bool("manthan.fallback", batch.Fallback))
	return batch, nil
}

// complete runs one provider call for slot i and classifies the outcome.
func (g *Generator) complete(ctx context.Context, engine llm.Engine, stage models.Stage, data stages.PromptData, i int) llm.ProviderResult {
	if !g.opts.UseModel {
		return llm.Fallback(llm.ReasonModelDisabled, nil)
	}
	if engine.Provider == "" {
		return llm.Fallback(llm.ReasonTemplateEngine, nil)
	}
	provider, ok := g.providers.Get(engine.Provider)
	if !ok {
		return llm.Fallback(llm.ReasonProviderUnavailable, fmt.Errorf("provider %s not configured", engine.Provider))
	}

	prompt, err := g.catalog.RenderPrompt(stage, data, i)
	if err != nil {
		return llm.Fallback(llm.ReasonRenderError, err)
	}

	text, model, err := g.call(ctx, provider, llm.CompletionRequest{
		SystemPrompt: g.catalog.System,
		Prompt:       prompt,
		Model:        engine.Model,
		Temperature:  float32(g.opts.Temperature),
		MaxTokens:    g.opts.MaxTokens,
	})
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		return llm.Fallback(llm.ReasonTimeout, err)
	case errors.Is(err, llm.ErrEmptyCompletion):
		return llm.Fallback(llm.ReasonEmptyCompletion, err)
	case err != nil:
		return llm.Fallback(llm.ReasonProviderError, apperrors.NewProviderError("completion failed", err))
	}
	cleaned := cleanCompletion(text)
	if cleaned == "" {
		return llm.Fallback(llm.ReasonEmptyCompletion, nil)
	}
	return llm.Success(cleaned, model)
}

// call invokes the provider under the configured timeout, retrying retryable
// failures with exponential backoff.
func (g *Generator) call(ctx context.Context, provider llm.Provider, req llm.CompletionRequest) (string, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var resp *llm.CompletionResponse
	attempts := 0
	start := time.Now()
	op := func() error {
		attempts++
		r, err := provider.CompleteText(callCtx, req)
		if err != nil {
			if callCtx.Err() != nil {
				return backoff.Permanent(callCtx.Err())
			}
			if !llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.opts.RetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.opts.Retries)), callCtx)

	err := backoff.Retry(op, policy)
	if err == nil && resp == nil {
		err = callCtx.Err()
	}
	genMetrics.providerDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider.GetName()),
		attribute.Int("attempts", attempts),
		attribute.Bool("ok", err == nil),
	))
	if err != nil {
		return "", "", err
	}
	return resp.Text, resp.ModelName, nil
}

func (g *Generator) fallbackText(stage models.Stage, data stages.PromptData, i int) string {
	text, err := g.catalog.RenderFallback(stage, data, i)
	if err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	g.logger.Error("fallback template failed, using plain variant", map[string]interface{}{
		"stage": stage, "slot": i, "error": err,
	})
	plain := fmt.Sprintf("%s: %s option %d\n%s", data.Title, stage, i+1, data.Logline)
	if data.Tweak != "" {
		plain += "\nSteering note applied: " + data.Tweak
	}
	return plain
}

func (g *Generator) variantLabel(stage models.Stage, i int) string {
	if spec, ok := g.catalog.Spec(stage); ok {
		return spec.VariantLabel(i)
	}
	return ""
}

func (g *Generator) recordFallback(ctx context.Context, stage models.Stage, slot int, r llm.ProviderResult) {
	fields := map[string]interface{}{
		"stage":  stage,
		"slot":   slot,
		"reason": r.Reason,
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
	}
	// model_disabled is the configured steady state, not worth a warning
	if r.Reason == llm.ReasonModelDisabled || r.Reason == llm.ReasonTemplateEngine {
		g.logger.Debug("template candidate", fields)
	} else {
		g.logger.Warn("provider fallback", fields)
	}
	genMetrics.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("reason", string(r.Reason)),
	))
	if r.Err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, string(r.Reason))
	}
}

func candidateID(i int) (string, error) {
	suffix, err := nanoid.Generate(idAlphabet, 12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("opt%d-%s", i+1, suffix), nil
}

var optionLabel = regexp.MustCompile(`(?i)^\s*(option|opt)\s*[0-9a-c][.):\-]*\s*`)

// cleanCompletion strips code fences and a leading "Option N:" label.
func cleanCompletion(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = optionLabel.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(text)
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// ensureUnique suffixes text when an identical candidate already exists.
func ensureUnique(text string, seen map[string]bool, i int) string {
	if !seen[normalize(text)] {
		return text
	}
	return fmt.Sprintf("%s\n(alternate %d)", text, i+1)
}

var beatLine = regexp.MustCompile(`(?i)^\s*(\d+[.)]|[-*•]|scene\s+\d+|act\s+[ivx]+\b)[.:)]?\s*`)

// ParseBeats extracts numbered, bulleted, scene and act lines.
func ParseBeats(text string) []string {
	var beats []string
	for _, line := range strings.Split(text, "\n") {
		if !beatLine.MatchString(line) {
			continue
		}
		beat := strings.TrimSpace(beatLine.ReplaceAllString(line, ""))
		if beat == "" {
			beat = strings.TrimSpace(line)
		}
		beats = append(beats, beat)
		if len(beats) == 30 {
			break
		}
	}
	return beats
}
