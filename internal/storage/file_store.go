// internal/storage/file_store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

const (
	projectsDir  = "projects"
	autosavesDir = "autosaves"
	docSuffix    = ".json"
	tempSuffix   = ".tmp"
)

// FileStore keeps one JSON document per project and per autosave.
type FileStore struct {
	files *FileStorage

	// serializes read-modify-write per document
	docLocks sync.Map
}

// NewFileStore opens a store rooted at dataDir and removes temp files left
// behind by writes that were interrupted before their rename.
func NewFileStore(dataDir string) (*FileStore, error) {
	fs, err := NewFileStorage(dataDir)
	if err != nil {
		return nil, err
	}
	s := &FileStore{files: fs}
	if err := s.removeStaleTemps(); err != nil {
		fs.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) removeStaleTemps() error {
	for _, dir := range []string{projectsDir, autosavesDir} {
		names, err := s.files.ListFiles(dir, tempSuffix)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := s.files.DeleteFile(dir, name); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove stale %s/%s: %w", dir, name, err)
			}
		}
	}
	return nil
}

func (s *FileStore) docLock(key string) *sync.Mutex {
	v, _ := s.docLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// docName maps an id to a file name, refusing anything that could escape
// the store directory.
func docName(id string) (string, bool) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", false
	}
	return id + docSuffix, true
}

func (s *FileStore) CreateProject(_ context.Context, p *models.Project) error {
	if err := validateProject(p); err != nil {
		return err
	}
	name, ok := docName(p.ID)
	if !ok {
		return fmt.Errorf("storage: invalid project id %q", p.ID)
	}
	mu := s.docLock(projectsDir + "/" + p.ID)
	mu.Lock()
	defer mu.Unlock()

	if s.files.FileExists(projectsDir, name) {
		return fmt.Errorf("%w: project %s", ErrExists, p.ID)
	}
	return s.files.SaveJSONFile(projectsDir, name, p)
}

func (s *FileStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	return s.loadProject(id)
}

func (s *FileStore) loadProject(id string) (*models.Project, error) {
	name, ok := docName(id)
	if !ok {
		return nil, ErrNotFound
	}
	var p models.Project
	if err := s.files.LoadJSONFile(projectsDir, name, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *FileStore) ListProjects(_ context.Context, ownerID string) ([]*models.Project, error) {
	names, err := s.files.ListFiles(projectsDir, docSuffix)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Project, 0, len(names))
	for _, name := range names {
		p, err := s.loadProject(strings.TrimSuffix(name, docSuffix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sortProjects(out)
	return out, nil
}

func (s *FileStore) CommitArtifact(_ context.Context, id string, expected, next models.Stage, artifact models.ChosenArtifact) (*models.Project, error) {
	mu := s.docLock(projectsDir + "/" + id)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.loadProject(id)
	if err != nil {
		return nil, err
	}
	if err := commit(p, expected, next, artifact, time.Now().UTC()); err != nil {
		return nil, err
	}
	name, _ := docName(id)
	if err := s.files.SaveJSONFile(projectsDir, name, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *FileStore) SaveAutosave(_ context.Context, rec models.AutosaveRecord) error {
	name, ok := docName(rec.DocID)
	if !ok {
		return fmt.Errorf("storage: invalid autosave id %q", rec.DocID)
	}
	mu := s.docLock(autosavesDir + "/" + rec.DocID)
	mu.Lock()
	defer mu.Unlock()

	var existing *models.AutosaveRecord
	var prev models.AutosaveRecord
	if err := s.files.LoadJSONFile(autosavesDir, name, &prev); err == nil {
		existing = &prev
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.files.SaveJSONFile(autosavesDir, name, mergeAutosave(existing, rec, time.Now().UTC()))
}

func (s *FileStore) GetAutosave(_ context.Context, docID string) (*models.AutosaveRecord, error) {
	name, ok := docName(docID)
	if !ok {
		return nil, ErrNotFound
	}
	var rec models.AutosaveRecord
	if err := s.files.LoadJSONFile(autosavesDir, name, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *FileStore) Close() error {
	s.files.Close()
	return nil
}
