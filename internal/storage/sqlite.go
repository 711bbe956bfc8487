package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL improves concurrency between pipeline writes and retrieval reads
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

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIndex(ctx context.Context, idx *Index) error {
	if idx.TaskID == "" {
		return fmt.Errorf("index task id is required")
	}
	if idx.Dimension <= 0 {
		return fmt.Errorf("index dimension must be positive")
	}

	createdAt := idx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexes (task_id, provider, model, dimension, sealed, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		idx.TaskID, idx.Provider, idx.Model, idx.Dimension, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: index for task %s", ErrAlreadyExists, idx.TaskID)
		}
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIndex(ctx context.Context, taskID string) (*Index, error) {
	idx := &Index{}
	var sealed int
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, provider, model, dimension, sealed, created_at
		FROM indexes WHERE task_id = ?`, taskID).
		Scan(&idx.TaskID, &idx.Provider, &idx.Model, &idx.Dimension, &sealed, &idx.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: index for task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}
	idx.Sealed = sealed != 0
	return idx, nil
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *Entry) error {
	idx, err := s.GetIndex(ctx, entry.TaskID)
	if err != nil {
		return err
	}
	if idx.Sealed {
		return fmt.Errorf("%w: task %s", ErrIndexSealed, entry.TaskID)
	}
	if len(entry.Vector) != idx.Dimension {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(entry.Vector), idx.Dimension)
	}

	symbols, err := json.Marshal(entry.Symbols)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}
	imports, err := json.Marshal(entry.Imports)
	if err != nil {
		return fmt.Errorf("marshal imports: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (task_id, path, language, symbols, imports, summary, preview, line_count, truncated, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TaskID, entry.Path, entry.Language, string(symbols), string(imports),
		entry.Summary, entry.Preview, entry.LineCount, boolToInt(entry.Truncated),
		serializeVector(entry.Vector))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: entry %s/%s", ErrAlreadyExists, entry.TaskID, entry.Path)
		}
		return fmt.Errorf("append entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *SQLiteStore) SealIndex(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE indexes SET sealed = 1 WHERE task_id = ?", taskID)
	if err != nil {
		return fmt.Errorf("seal index: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("seal index: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: index for task %s", ErrNotFound, taskID)
	}
	return nil
}

func (s *SQLiteStore) CountEntries(ctx context.Context, taskID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE task_id = ?", taskID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, taskID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, path, language, symbols, imports, summary, preview, line_count, truncated, vector
		FROM entries WHERE task_id = ? ORDER BY path ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) GetEntryByPath(ctx context.Context, taskID, path string) (*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, path, language, symbols, imports, summary, preview, line_count, truncated, vector
		FROM entries WHERE task_id = ? AND path = ?`, taskID, path)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: entry %s/%s", ErrNotFound, taskID, path)
	}
	return scanEntry(rows)
}

func (s *SQLiteStore) SearchVector(ctx context.Context, taskID string, query []float32, limit int) ([]VectorResult, error) {
	idx, err := s.GetIndex(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(query) != idx.Dimension {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query), idx.Dimension)
	}
	return searchVector(ctx, s.db, taskID, query, limit)
}

func (s *SQLiteStore) DeleteIndex(ctx context.Context, taskID string) error {
	// entries cascade on the foreign key
	_, err := s.db.ExecContext(ctx, "DELETE FROM indexes WHERE task_id = ?", taskID)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	entry := &Entry{}
	var symbols, imports string
	var truncated int
	var vector []byte

	err := rows.Scan(&entry.ID, &entry.TaskID, &entry.Path, &entry.Language,
		&symbols, &imports, &entry.Summary, &entry.Preview,
		&entry.LineCount, &truncated, &vector)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	if err := json.Unmarshal([]byte(symbols), &entry.Symbols); err != nil {
		return nil, fmt.Errorf("unmarshal symbols: %w", err)
	}
	if err := json.Unmarshal([]byte(imports), &entry.Imports); err != nil {
		return nil, fmt.Errorf("unmarshal imports: %w", err)
	}
	entry.Truncated = truncated != 0
	entry.Vector = deserializeVector(vector)
	return entry, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
