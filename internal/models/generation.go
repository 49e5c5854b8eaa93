// internal/models/generation.go
package models

import "time"

// Candidate sources.
const (
	SourceModel    = "model"
	SourceTemplate = "template"
)

// Candidate is one alternative text offered for a stage. Candidates live only
// as long as their batch.
type Candidate struct {
	ID    string        `json:"id"`
	Text  string        `json:"text"`
	Meta  CandidateMeta `json:"meta"`
	Index int           `json:"index"`
	Tweak string        `json:"tweak,omitempty"`
}

// CandidateMeta describes how a candidate was produced.
type CandidateMeta struct {
	Variant        string   `json:"variant"`
	Source         string   `json:"source"` // model or template
	Model          string   `json:"model,omitempty"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
	Beats          []string `json:"beats,omitempty"`
}

// GenerationBatch is the result of one generation call for (project, stage).
type GenerationBatch struct {
	ID         string      `json:"batch_id"`
	ProjectID  string      `json:"project_id"`
	Stage      Stage       `json:"stage"`
	Tweak      string      `json:"tweak,omitempty"`
	Engine     string      `json:"engine"`
	Candidates []Candidate `json:"candidates"`
	Fallback   bool        `json:"fallback"` // at least one candidate came from the template path
	CreatedAt  time.Time   `json:"created_at"`
}

// FindCandidate returns the candidate with id, if present.
func (b *GenerationBatch) FindCandidate(id string) (Candidate, bool) {
	if b == nil {
		return Candidate{}, false
	}
	for _, c := range b.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// ProjectContext is what the generator sees of a project: the premise and the
// artifacts committed before the stage being generated.
type ProjectContext struct {
	ProjectID string
	Title     string
	Logline   string
	Genre     string
	Tone      string
	Language  string
	Artifacts map[Stage]string
}

// ContextFor builds the generator view of p for stage. Only artifacts of
// stages strictly before stage are included.
func ContextFor(p *Project, stage Stage) ProjectContext {
	ctx := ProjectContext{
		ProjectID: p.ID,
		Title:     p.Title,
		Logline:   p.Logline,
		Genre:     p.Genre,
		Tone:      p.Tone,
		Language:  p.Language,
		Artifacts: make(map[Stage]string),
	}
	for s, a := range p.Artifacts {
		if a != nil && s.Before(stage) {
			ctx.Artifacts[s] = a.Text
		}
	}
	return ctx
}

// Previous returns the artifact of the stage just before stage.
func (c ProjectContext) Previous(stage Stage) string {
	return c.Artifacts[stage.Prev()]
}
