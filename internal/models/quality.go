// internal/models/quality.go
package models

import "time"

// Quality labels, best first.
const (
	QualityStrong    = "Strong"
	QualityDecent    = "Decent"
	QualityNeedsWork = "Needs work"
)

// QualityRecord is advisory metadata attached to autosaved artifacts.
type QualityRecord struct {
	Label       string   `json:"label"`
	Score       int      `json:"score"`
	Suggestions []string `json:"suggestions"`
}

// PitchRequest is the input of the one-shot pitch generator.
type PitchRequest struct {
	Title   string `json:"title"`
	Logline string `json:"logline"`
	Genre   string `json:"genre,omitempty"`
	Tone    string `json:"tone,omitempty"`
}

// PitchPack is a synopsis, a beat sheet and a deck outline for one premise.
type PitchPack struct {
	Title       string         `json:"title"`
	Logline     string         `json:"logline"`
	Synopsis    string         `json:"synopsis"`
	BeatSheet   []string       `json:"beat_sheet"`
	DeckOutline []string       `json:"deck_outline"`
	Source      string         `json:"source"`
	Quality     *QualityRecord `json:"quality,omitempty"`
	DocID       string         `json:"doc_id,omitempty"`
}

// AutosaveRecord is one best-effort snapshot. DocID is derived from the
// project and stage so repeated saves overwrite.
type AutosaveRecord struct {
	DocID     string        `json:"doc_id"`
	ProjectID string        `json:"project_id,omitempty"`
	OwnerID   string        `json:"owner_id,omitempty"`
	Stage     string        `json:"stage"`
	Text      string        `json:"text"`
	Quality   QualityRecord `json:"quality"`
	Pitch     *PitchPack    `json:"pitch,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
