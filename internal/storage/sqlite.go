package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const defaultListLimit = 50

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			application_id TEXT,
			template TEXT,
			output_path TEXT,
			size_bytes INTEGER,
			requested INTEGER,
			resolved INTEGER,
			missing JSON,
			rounds INTEGER,
			batches INTEGER,
			status TEXT,
			error TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_application ON generations(application_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveGeneration(ctx context.Context, g *Generation) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	missing, err := json.Marshal(g.Missing)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generations (id, application_id, template, output_path, size_bytes, requested, resolved, missing, rounds, batches, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.ApplicationID, g.Template, g.OutputPath, g.SizeBytes, g.Requested, g.Resolved, string(missing), g.Rounds, g.Batches, g.Status, g.Error, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save generation %s: %w", g.ID, err)
	}
	return nil
}

const selectGeneration = `SELECT id, application_id, template, output_path, size_bytes, requested, resolved, missing, rounds, batches, status, error, created_at FROM generations`

func (s *SQLiteStore) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, selectGeneration+` WHERE id = ?`, id)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load generation %s: %w", id, err)
	}
	return g, nil
}

func (s *SQLiteStore) ListGenerations(ctx context.Context, limit int) ([]*Generation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectGeneration+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(sc scanner) (*Generation, error) {
	var g Generation
	var appID, outputPath, status, errText sql.NullString
	var missing []byte
	if err := sc.Scan(&g.ID, &appID, &g.Template, &outputPath, &g.SizeBytes, &g.Requested, &g.Resolved,
		&missing, &g.Rounds, &g.Batches, &status, &errText, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.ApplicationID = appID.String
	g.OutputPath = outputPath.String
	g.Status = status.String
	g.Error = errText.String
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &g.Missing); err != nil {
			return nil, fmt.Errorf("decoding missing keys of %s: %w", g.ID, err)
		}
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}
