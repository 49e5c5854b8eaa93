// internal/generator/pitch.go
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/telemetry"
)

const (
	pitchBeats = 10
	pitchDeck  = 8

	defaultGenre = "Drama"
	defaultTone  = "Grounded, character-driven"
)

const pitchSystemPrompt = "You are the packaging agent for an Indian film and series studio. " +
	"Write culturally authentic material grounded tightly in the given title and logline. Avoid boilerplate."

const pitchInstructions = "Return ONLY valid JSON with keys: title, logline, synopsis (200-300 words), " +
	"beat_sheet (10 items), deck_outline (8 items). Each beat must pay off the precise premise in the logline."

// ValidatePitch checks title and logline bounds.
func ValidatePitch(req models.PitchRequest) error {
	title := strings.TrimSpace(req.Title)
	logline := strings.TrimSpace(req.Logline)
	if n := utf8.RuneCountInString(title); n < 2 || n > 120 {
		return apperrors.NewValidationError("title must be between 2 and 120 characters", nil)
	}
	if n := utf8.RuneCountInString(logline); n < 5 || n > 400 {
		return apperrors.NewValidationError("logline must be between 5 and 400 characters", nil)
	}
	return nil
}

// GeneratePitch builds a pitch pack. The model path is tried first when
// enabled; any failure yields the deterministic pack.
func (g *Generator) GeneratePitch(ctx context.Context, req models.PitchRequest) (*models.PitchPack, error) {
	if err := ValidatePitch(req); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Logline = strings.TrimSpace(req.Logline)
	if strings.TrimSpace(req.Genre) == "" {
		req.Genre = defaultGenre
	}
	if strings.TrimSpace(req.Tone) == "" {
		req.Tone = defaultTone
	}

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "generator.pitch")
	defer span.End()

	pack, result := g.modelPitch(ctx, req)
	if !result.OK() {
		g.logger.Info("pitch served from template", map[string]interface{}{
			"reason": result.Reason,
			"title":  req.Title,
		})
		pack = TemplatePitch(req)
	}
	genMetrics.pitches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", pack.Source)))
	return pack, nil
}

func (g *Generator) modelPitch(ctx context.Context, req models.PitchRequest) (*models.PitchPack, llm.ProviderResult) {
	if !g.opts.UseModel {
		return nil, llm.Fallback(llm.ReasonModelDisabled, nil)
	}
	engine, err := g.ResolveEngine("", "")
	if err != nil || engine.Provider == "" {
		return nil, llm.Fallback(llm.ReasonTemplateEngine, err)
	}
	provider, ok := g.providers.Get(engine.Provider)
	if !ok {
		return nil, llm.Fallback(llm.ReasonProviderUnavailable, nil)
	}

	input, err := json.Marshal(map[string]string{
		"title": req.Title, "logline": req.Logline, "genre": req.Genre, "tone": req.Tone,
	})
	if err != nil {
		return nil, llm.Fallback(llm.ReasonRenderError, err)
	}
	text, model, err := g.call(ctx, provider, llm.CompletionRequest{
		SystemPrompt: pitchSystemPrompt,
		Prompt:       pitchInstructions + "\n\nINPUT:\n" + string(input),
		Model:        engine.Model,
		Temperature:  float32(g.opts.Temperature),
		MaxTokens:    g.opts.MaxTokens,
	})
	if err != nil {
		g.logger.Warn("pitch provider failed", map[string]interface{}{"error": err.Error()})
		return nil, llm.Fallback(llm.ReasonProviderError, err)
	}

	pack, err := ParsePitch(text, req)
	if err != nil {
		g.logger.Warn("pitch completion unusable", map[string]interface{}{"error": err.Error()})
		return nil, llm.Fallback(llm.ReasonMalformed, err)
	}
	pack.Source = models.SourceModel
	return pack, llm.Success(text, model)
}

// ParsePitch extracts the outermost JSON object from a completion. Lists are
// clamped; a pack missing its synopsis, beats or deck is rejected.
func ParsePitch(text string, req models.PitchRequest) (*models.PitchPack, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var raw struct {
		Title       string        `json:"title"`
		Logline     string        `json:"logline"`
		Synopsis    string        `json:"synopsis"`
		BeatSheet   []interface{} `json:"beat_sheet"`
		DeckOutline []interface{} `json:"deck_outline"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode pitch: %w", err)
	}

	pack := &models.PitchPack{
		Title:       firstNonEmpty(raw.Title, req.Title),
		Logline:     firstNonEmpty(raw.Logline, req.Logline),
		Synopsis:    strings.TrimSpace(raw.Synopsis),
		BeatSheet:   clampList(raw.BeatSheet, pitchBeats),
		DeckOutline: clampList(raw.DeckOutline, pitchDeck),
	}
	if pack.Synopsis == "" || len(pack.BeatSheet) == 0 || len(pack.DeckOutline) == 0 {
		return nil, fmt.Errorf("pitch is missing synopsis, beats or deck")
	}
	return pack, nil
}

// TemplatePitch is the deterministic pack for a premise.
func TemplatePitch(req models.PitchRequest) *models.PitchPack {
	genre := firstNonEmpty(req.Genre, defaultGenre)
	tone := firstNonEmpty(req.Tone, defaultTone)
	synopsis := fmt.Sprintf("**%s** is a %s told with a %s tone. The core premise is: %s "+
		"Act I establishes the world and immediate stakes from this premise; "+
		"Act II escalates with choices that logically follow; "+
		"Act III resolves the tension in a way that pays off the premise.",
		req.Title, strings.ToLower(genre), strings.ToLower(tone), req.Logline)

	return &models.PitchPack{
		Title:    req.Title,
		Logline:  req.Logline,
		Synopsis: synopsis,
		BeatSheet: []string{
			"Opening Image: show the world implied by the logline.",
			"Theme Stated: a line tied to the inner conflict.",
			"Catalyst: inciting event that activates the premise.",
			"Debate: the cost of engaging the premise.",
			"Break into Two: decisive step that embodies the premise.",
			"Midpoint: reversal or reveal that reframes stakes.",
			"Bad Guys Close In: pressure tied to the premise.",
			"All Is Lost: the premise appears unwinnable.",
			"Break into Three: insight earned from contradictions.",
			"Finale: specific payoff rooted in the logline.",
		},
		DeckOutline: []string{
			"Cover: Title & logline (premise-centered).",
			"Overview: Why now (market and audience in India).",
			"World & Characters: 3-5 leads with premise-tied arcs.",
			"Story: 1-page synopsis referencing the logline.",
			"Beat Board: The 10 beats above.",
			"Lookbook: Visual references (India-specific).",
			"Market & Comps: Relevant Indian films and OTT.",
			"Team & Next Steps: Attachments, timeline, budget.",
		},
		Source: models.SourceTemplate,
	}
}

func clampList(xs []interface{}, n int) []string {
	out := make([]string, 0, n)
	for _, x := range xs {
		if len(out) == n {
			break
		}
		s := strings.TrimSpace(fmt.Sprint(x))
		if s != "" && x != nil {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
