// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      TEXT NOT NULL,
	stage      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id, title);

CREATE TABLE IF NOT EXISTS autosaves (
	doc_id     TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	owner_id   TEXT NOT NULL DEFAULT '',
	stage      TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore stores each project as a JSON document plus the columns the
// compare-and-swap and listing need.
type SQLiteStore struct {
	db *sql.DB
}

func sqliteConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteConnString(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; the CAS runs inside a single connection's transaction
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if err := validateProject(p); err != nil {
		return err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, title, stage, version, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.OwnerID, p.Title, string(p.Stage), p.Version, string(doc),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: project %s", ErrExists, p.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	var p models.Project
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `SELECT doc FROM projects WHERE id = ?`, id))
}

func (s *SQLiteStore) ListProjects(ctx context.Context, ownerID string) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM projects WHERE owner_id = ? ORDER BY lower(title), created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CommitArtifact(ctx context.Context, id string, expected, next models.Stage, artifact models.ChosenArtifact) (*models.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProject(tx.QueryRowContext(ctx, `SELECT doc FROM projects WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	version := p.Version
	if err := commit(p, expected, next, artifact, time.Now().UTC()); err != nil {
		return nil, err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal project: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE projects SET stage = ?, version = ?, doc = ?, updated_at = ?
		WHERE id = ? AND stage = ? AND version = ?`,
		string(p.Stage), p.Version, string(doc), formatTime(p.UpdatedAt),
		id, string(expected), version)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: project %s changed concurrently", ErrStageConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SaveAutosave(ctx context.Context, rec models.AutosaveRecord) error {
	now := time.Now().UTC()
	rec = mergeAutosave(nil, rec, now)
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal autosave: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO autosaves (doc_id, project_id, owner_id, stage, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			project_id = excluded.project_id,
			owner_id   = excluded.owner_id,
			stage      = excluded.stage,
			doc        = excluded.doc,
			updated_at = excluded.updated_at`,
		rec.DocID, rec.ProjectID, rec.OwnerID, rec.Stage, string(doc),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert autosave: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAutosave(ctx context.Context, docID string) (*models.AutosaveRecord, error) {
	var doc, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at FROM autosaves WHERE doc_id = ?`, docID).Scan(&doc, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get autosave: %w", err)
	}
	var rec models.AutosaveRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode autosave: %w", err)
	}
	// created_at column survives upserts; the document copy does not
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
