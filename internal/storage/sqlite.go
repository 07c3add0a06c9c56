package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/silohq/silosearch/pkg/types"
)

// SQLiteStore implements Store on a single SQLite database. All namespaces
// share the database; each namespace's rows form its persistence unit.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating parent directories if needed) and migrates
// the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateNamespace inserts a namespace record. Returns ErrConflict if the ID
// is already taken.
func (s *SQLiteStore) CreateNamespace(ctx context.Context, ns *types.Namespace) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO namespaces (id, description, department, contact, tags, created_at, updated_at, document_count, chunk_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ns.ID, ns.Description, ns.Department, ns.Contact, encodeTags(ns.Tags), now, now, ns.DocumentCount, ns.ChunkCount)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("namespace %q: %w", ns.ID, types.ErrConflict)
		}
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	ns.CreatedAt = now
	ns.UpdatedAt = now
	return nil
}

// GetNamespace fetches a namespace record by ID.
func (s *SQLiteStore) GetNamespace(ctx context.Context, id string) (*types.Namespace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, department, contact, tags, created_at, updated_at, document_count, chunk_count
		FROM namespaces WHERE id = ?
	`, id)
	ns, err := scanNamespace(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("namespace %q: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}
	return ns, nil
}

// ListNamespaces returns all namespace records, optionally filtered by
// department, ordered by ID.
func (s *SQLiteStore) ListNamespaces(ctx context.Context, department string) ([]*types.Namespace, error) {
	query := `
		SELECT id, description, department, contact, tags, created_at, updated_at, document_count, chunk_count
		FROM namespaces
	`
	var args []interface{}
	if department != "" {
		query += " WHERE department = ?"
		args = append(args, department)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Namespace
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// UpdateNamespaceCounts refreshes the denormalized counts and updated_at.
func (s *SQLiteStore) UpdateNamespaceCounts(ctx context.Context, id string, documents, chunks int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE namespaces SET document_count = ?, chunk_count = ?, updated_at = ? WHERE id = ?
	`, documents, chunks, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update namespace counts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("namespace %q: %w", id, types.ErrNotFound)
	}
	return nil
}

// DeleteNamespace removes the namespace record and its chunk rows. Chunks
// are deleted explicitly rather than through the foreign key cascade so the
// full-text index triggers always fire.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE namespace = ?", id); err != nil {
		return fmt.Errorf("failed to delete namespace chunks: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM namespaces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("namespace %q: %w", id, types.ErrNotFound)
	}
	return nil
}

// SaveChunks replaces the namespace's chunk rows with the given table in one
// transaction. len(vectors) must equal len(chunks); a chunk without a vector
// passes nil in its slot.
func (s *SQLiteStore) SaveChunks(ctx context.Context, namespace string, chunks []*types.Chunk, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d chunks but %d vectors", types.ErrInvalidArgument, len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("failed to clear chunk rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (namespace, chunk_id, source_id, position, content,
			title, author, department, document_type, tags,
			created_date, modified_date, language, security_level,
			access_count, last_accessed, migrated_from, migrated_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range chunks {
		_, err := stmt.ExecContext(ctx,
			namespace, c.ID, c.SourceID, c.Position, c.Text,
			c.Title, c.Author, c.Department, c.DocumentType, encodeTags(c.Tags),
			c.CreatedDate, c.ModifiedDate, c.Language, c.SecurityLevel,
			c.AccessCount, nullTime(c.LastAccessed), c.MigratedFrom, nullTime(c.MigratedAt),
			serializeVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk save: %w", err)
	}
	return nil
}

// LoadChunks restores the namespace's chunk table and vectors in insertion
// order. A missing namespace loads as empty, not as an error; the namespace
// record is the authority on existence.
func (s *SQLiteStore) LoadChunks(ctx context.Context, namespace string) ([]*types.Chunk, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, source_id, position, content,
			title, author, department, document_type, tags,
			created_date, modified_date, language, security_level,
			access_count, last_accessed, migrated_from, migrated_at, vector
		FROM chunks WHERE namespace = ? ORDER BY rowid
	`, namespace)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	var vectors [][]float32
	for rows.Next() {
		c := &types.Chunk{Namespace: namespace}
		var tags string
		var lastAccessed, migratedAt sql.NullTime
		var blob []byte
		err := rows.Scan(&c.ID, &c.SourceID, &c.Position, &c.Text,
			&c.Title, &c.Author, &c.Department, &c.DocumentType, &tags,
			&c.CreatedDate, &c.ModifiedDate, &c.Language, &c.SecurityLevel,
			&c.AccessCount, &lastAccessed, &c.MigratedFrom, &migratedAt, &blob)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Tags = decodeTags(tags)
		c.ContentLength = len(c.Text)
		if lastAccessed.Valid {
			c.LastAccessed = lastAccessed.Time
		}
		if migratedAt.Valid {
			c.MigratedAt = migratedAt.Time
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, vec)
	}
	return chunks, vectors, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNamespace(row rowScanner) (*types.Namespace, error) {
	ns := &types.Namespace{}
	var tags string
	err := row.Scan(&ns.ID, &ns.Description, &ns.Department, &ns.Contact, &tags,
		&ns.CreatedAt, &ns.UpdatedAt, &ns.DocumentCount, &ns.ChunkCount)
	if err != nil {
		return nil, err
	}
	ns.Tags = decodeTags(tags)
	return ns, nil
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// isUniqueViolation detects primary-key collisions without depending on a
// driver-specific error type; both drivers include the constraint name in
// the message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
