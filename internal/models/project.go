// internal/models/project.go
package models

import (
	"time"
)

// Project is the authoritative record of one creative project. Only the
// workflow mutates it, and only through store commits.
type Project struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Logline     string                    `json:"logline"`
	Genre       string                    `json:"genre,omitempty"`
	Tone        string                    `json:"tone,omitempty"`
	CreatorName string                    `json:"creator_name,omitempty"`
	OwnerID     string                    `json:"owner_id"`
	Language    string                    `json:"language"`
	Engine      string                    `json:"engine"`
	Stage       Stage                     `json:"stage"` // current-stage pointer
	Artifacts   map[Stage]*ChosenArtifact `json:"artifacts"`
	History     []ArtifactRevision        `json:"history"`
	Version     int64                     `json:"version"` // bumped on every commit
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// ProjectInput is the caller-supplied part of a new project.
type ProjectInput struct {
	Title       string `json:"title"`
	Logline     string `json:"logline"`
	Genre       string `json:"genre,omitempty"`
	Tone        string `json:"tone,omitempty"`
	CreatorName string `json:"creator_name,omitempty"`
	Language    string `json:"language,omitempty"`
	Engine      string `json:"engine,omitempty"`
}

// ProjectSummary is the list view of a project.
type ProjectSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Logline     string    `json:"logline"`
	Genre       string    `json:"genre,omitempty"`
	Tone        string    `json:"tone,omitempty"`
	CreatorName string    `json:"creator_name,omitempty"`
	Stage       Stage     `json:"stage"`
	Engine      string    `json:"engine"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChosenArtifact is the committed text for one stage.
type ChosenArtifact struct {
	Stage       Stage     `json:"stage"`
	Text        string    `json:"text"`
	CandidateID string    `json:"candidate_id,omitempty"`
	BatchID     string    `json:"batch_id,omitempty"`
	Edited      bool      `json:"edited"`
	Engine      string    `json:"engine,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// ArtifactRevision is one entry of the append-only artifact trail.
type ArtifactRevision struct {
	Revision int `json:"revision"`
	ChosenArtifact
}

// Summary returns the list view of p.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:          p.ID,
		Title:       p.Title,
		Logline:     p.Logline,
		Genre:       p.Genre,
		Tone:        p.Tone,
		CreatorName: p.CreatorName,
		Stage:       p.Stage,
		Engine:      p.Engine,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ArtifactText returns the committed text for stage, or "".
func (p *Project) ArtifactText(stage Stage) string {
	if a, ok := p.Artifacts[stage]; ok && a != nil {
		return a.Text
	}
	return ""
}

// HasArtifact reports whether stage has been committed.
func (p *Project) HasArtifact(stage Stage) bool {
	a, ok := p.Artifacts[stage]
	return ok && a != nil
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Artifacts = make(map[Stage]*ChosenArtifact, len(p.Artifacts))
	for stage, a := range p.Artifacts {
		if a == nil {
			continue
		}
		copied := *a
		c.Artifacts[stage] = &copied
	}
	c.History = make([]ArtifactRevision, len(p.History))
	copy(c.History, p.History)
	return &c
}

// ApplyCommit records artifact, appends it to the history and moves the
// pointer to next. It does not check the transition; the store does that.
func (p *Project) ApplyCommit(artifact ChosenArtifact, next Stage, now time.Time) {
	if p.Artifacts == nil {
		p.Artifacts = make(map[Stage]*ChosenArtifact)
	}
	stored := artifact
	p.Artifacts[artifact.Stage] = &stored
	p.History = append(p.History, ArtifactRevision{
		Revision:       len(p.History) + 1,
		ChosenArtifact: artifact,
	})
	p.Stage = next
	p.Version++
	p.UpdatedAt = now
}
