// Package quality rates artifacts with cheap, deterministic heuristics.
// Scores are advisory and never block a workflow transition.
package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/stages"
)

const (
	lengthPoints    = 40
	markerPoints    = 40
	structurePoints = 20
)

// Scorer rates stage artifacts against the catalog hints.
type Scorer struct {
	catalog *stages.Catalog
}

// NewScorer creates a Scorer. A nil catalog scores every stage as unknown.
func NewScorer(catalog *stages.Catalog) *Scorer {
	return &Scorer{catalog: catalog}
}

// Score rates text for stage. It never fails.
func (s *Scorer) Score(text string, stage models.Stage) models.QualityRecord {
	if strings.TrimSpace(text) == "" || !utf8.ValidString(text) {
		return unscorable("Add content before scoring this stage.")
	}
	var spec *stages.StageSpec
	if s != nil && s.catalog != nil {
		spec, _ = s.catalog.Spec(stage)
	}
	if spec == nil {
		return unscorable(fmt.Sprintf("No quality hints exist for stage %q.", stage))
	}

	var suggestions []string
	score := 0

	words := len(strings.Fields(text))
	pts, hint := lengthScore(words, spec.MinWords, spec.MaxWords)
	score += pts
	if hint != "" {
		suggestions = append(suggestions, hint)
	}

	pts, missing := markerScore(strings.ToLower(text), spec.Markers)
	score += pts
	if len(missing) > 0 {
		suggestions = append(suggestions, fmt.Sprintf("Consider covering: %s.", strings.Join(missing, ", ")))
	}

	lines := nonEmptyLines(text)
	pts = structureScore(lines, spec.MinLines)
	score += pts
	if pts < structurePoints {
		suggestions = append(suggestions, fmt.Sprintf("Break the %s into at least %d lines or beats.", spec.Label, spec.MinLines))
	}

	return models.QualityRecord{Label: Label(score), Score: score, Suggestions: nonNil(suggestions)}
}

// ScorePitch applies the premise-level gate to a pitch pack.
func ScorePitch(req models.PitchRequest, pack *models.PitchPack) models.QualityRecord {
	var reasons []string
	score := 0

	if utf8.RuneCountInString(strings.TrimSpace(req.Title)) >= 3 {
		score += 20
	} else {
		reasons = append(reasons, "Title too short")
	}
	if len(strings.Fields(req.Logline)) >= 10 {
		score += 25
	} else {
		reasons = append(reasons, "Logline needs more detail (>=10 words)")
	}
	if strings.TrimSpace(req.Genre) != "" {
		score += 15
	} else {
		reasons = append(reasons, "No genre provided")
	}
	if strings.TrimSpace(req.Tone) != "" {
		score += 10
	} else {
		reasons = append(reasons, "No tone provided")
	}

	var beats int
	var synopsis string
	if pack != nil {
		beats = len(pack.BeatSheet)
		synopsis = pack.Synopsis
	}
	if beats >= 3 {
		score += 15
	} else {
		reasons = append(reasons, "Beat sheet should have at least 3 beats")
	}
	if len(strings.Fields(synopsis)) >= 60 {
		score += 15
	} else {
		reasons = append(reasons, "Synopsis is very short")
	}

	return models.QualityRecord{Label: Label(score), Score: score, Suggestions: nonNil(reasons)}
}

// Label maps a 0-100 score to its label.
func Label(score int) string {
	switch {
	case score >= 80:
		return models.QualityStrong
	case score >= 60:
		return models.QualityDecent
	default:
		return models.QualityNeedsWork
	}
}

func lengthScore(words, min, max int) (int, string) {
	switch {
	case min > 0 && words < min:
		return lengthPoints * words / min, fmt.Sprintf("Expand to at least %d words (currently %d).", min, words)
	case max > 0 && words > max:
		over := words - max
		pts := lengthPoints - lengthPoints*over/max
		if pts < lengthPoints/2 {
			pts = lengthPoints / 2
		}
		return pts, fmt.Sprintf("Tighten to at most %d words (currently %d).", max, words)
	}
	return lengthPoints, ""
}

func markerScore(lower string, markers []string) (int, []string) {
	if len(markers) == 0 {
		return markerPoints, nil
	}
	var missing []string
	for _, m := range markers {
		if !strings.Contains(lower, m) {
			missing = append(missing, m)
		}
	}
	found := len(markers) - len(missing)
	return markerPoints * found / len(markers), missing
}

func structureScore(lines, min int) int {
	if min <= 0 || lines >= min {
		return structurePoints
	}
	return structurePoints * lines / min
}

func nonEmptyLines(text string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

func unscorable(suggestion string) models.QualityRecord {
	return models.QualityRecord{Label: models.QualityNeedsWork, Score: 0, Suggestions: []string{suggestion}}
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
