// internal/models/stage.go
package models

import "strings"

// Stage is one step of the linear creative pipeline.
type Stage string

const (
	StageIdea      Stage = "idea"
	StageOutline   Stage = "outline"
	StageOnePager  Stage = "onepager"
	StageTreatment Stage = "treatment"
	StageScenes    Stage = "scenes"
	StageDialogue  Stage = "dialogue"
	StageDone      Stage = "done"
)

// CandidatesPerBatch is the fixed number of candidates in every batch.
const CandidatesPerBatch = 3

var stageOrder = []Stage{
	StageIdea,
	StageOutline,
	StageOnePager,
	StageTreatment,
	StageScenes,
	StageDialogue,
	StageDone,
}

// ParseStage normalizes s and reports whether it names a known stage.
func ParseStage(s string) (Stage, bool) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	return stage, stage.Index() >= 0
}

// Stages returns the full ordered pipeline, including idea and done.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// GeneratableStages are the stages candidates can be generated for.
func GeneratableStages() []Stage {
	var out []Stage
	for _, s := range stageOrder {
		if s.Generatable() {
			out = append(out, s)
		}
	}
	return out
}

// Index is the position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Generatable reports whether candidates can be produced for s. The idea
// stage is seeded from the premise and done is the terminal marker.
func (s Stage) Generatable() bool {
	return s.Valid() && s != StageIdea && s != StageDone
}

// Next is the immediate successor of s. Done is its own successor.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return StageDone
	}
	return stageOrder[i+1]
}

// Prev is the immediate predecessor of s, or "" for idea and unknown stages.
func (s Stage) Prev() Stage {
	i := s.Index()
	if i <= 0 {
		return ""
	}
	return stageOrder[i-1]
}

// Before reports whether s comes strictly before other.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

func (s Stage) String() string {
	return string(s)
}
