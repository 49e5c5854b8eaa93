// internal/storage/memory.go
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

// MemoryStore keeps everything in process memory. Used by tests and by
// deployments that do not need durability.
type MemoryStore struct {
	mu        sync.RWMutex
	projects  map[string]*models.Project
	autosaves map[string]models.AutosaveRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  make(map[string]*models.Project),
		autosaves: make(map[string]models.AutosaveRecord),
	}
}

func (s *MemoryStore) CreateProject(_ context.Context, p *models.Project) error {
	if err := validateProject(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s", ErrExists, p.ID)
	}
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProjects(_ context.Context, ownerID string) ([]*models.Project, error) {
	s.mu.RLock()
	out := make([]*models.Project, 0)
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()
	sortProjects(out)
	return out, nil
}

func (s *MemoryStore) CommitArtifact(_ context.Context, id string, expected, next models.Stage, artifact models.ChosenArtifact) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := p.Clone()
	if err := commit(updated, expected, next, artifact, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.projects[id] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) SaveAutosave(_ context.Context, rec models.AutosaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing *models.AutosaveRecord
	if prev, ok := s.autosaves[rec.DocID]; ok {
		existing = &prev
	}
	s.autosaves[rec.DocID] = mergeAutosave(existing, rec, time.Now().UTC())
	return nil
}

func (s *MemoryStore) GetAutosave(_ context.Context, docID string) (*models.AutosaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.autosaves[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Close() error { return nil }
