// Package storage persists projects and autosave snapshots.
//
// Three ProjectStore implementations share one contract: an in-memory map,
// JSON documents on disk and a SQLite database. Artifact commits are a
// compare-and-swap on the project's stage pointer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

var (
	// ErrNotFound is returned when a project or autosave does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrStageConflict is returned when a commit's expected stage no longer
	// matches the stored pointer.
	ErrStageConflict = errors.New("storage: stage pointer changed")
	// ErrExists is returned when creating a project whose id is taken.
	ErrExists = errors.New("storage: already exists")
)

// ProjectStore is the persistence contract used by the workflow.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// ListProjects returns the owner's projects ordered by title.
	ListProjects(ctx context.Context, ownerID string) ([]*models.Project, error)
	// CommitArtifact stores artifact and moves the pointer to next, provided
	// the pointer still equals expected. It returns the updated project.
	CommitArtifact(ctx context.Context, id string, expected, next models.Stage, artifact models.ChosenArtifact) (*models.Project, error)
	// SaveAutosave upserts a snapshot by DocID, preserving CreatedAt.
	SaveAutosave(ctx context.Context, rec models.AutosaveRecord) error
	GetAutosave(ctx context.Context, docID string) (*models.AutosaveRecord, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the store selected by driver. dataDir is used by the file
// driver and sqlitePath by the sqlite driver.
func Open(ctx context.Context, driver, dataDir, sqlitePath string) (ProjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		return NewFileStore(dataDir)
	case DriverSQLite:
		if sqlitePath == "" {
			sqlitePath = filepath.Join(dataDir, "manthan.db")
		}
		return NewSQLiteStore(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

// commit applies the compare-and-swap on a private copy.
func commit(p *models.Project, expected, next models.Stage, artifact models.ChosenArtifact, now time.Time) error {
	if p.Stage != expected {
		return fmt.Errorf("%w: expected %s, found %s", ErrStageConflict, expected, p.Stage)
	}
	p.ApplyCommit(artifact, next, now)
	return nil
}

func sortProjects(ps []*models.Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		ti, tj := strings.ToLower(ps[i].Title), strings.ToLower(ps[j].Title)
		if ti != tj {
			return ti < tj
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func validateProject(p *models.Project) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("storage: project id is required")
	}
	return nil
}

func mergeAutosave(existing *models.AutosaveRecord, rec models.AutosaveRecord, now time.Time) models.AutosaveRecord {
	if existing != nil && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec
}
