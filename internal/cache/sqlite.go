package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite is the on-disk local store. Each partition is a table of
// (id, doc, saved_at) rows.
type SQLite struct {
	conn *sql.DB
	path string
}

var _ Partitions = (*SQLite)(nil)

// DefaultFile returns the database path inside dataDir.
func DefaultFile(dataDir string) string {
	return filepath.Join(dataDir, DatabaseName+".sqlite")
}

// Open opens or creates the store at path and brings the schema up to
// SchemaVersion. It is safe to call on an already current database.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := &SQLite{conn: conn, path: path}
	if err := s.upgrade(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Version reports the stored schema version.
func (s *SQLite) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// upgrade creates the partitions missing for the stored version. Existing
// rows are never rewritten.
func (s *SQLite) upgrade(ctx context.Context) error {
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			doc TEXT NOT NULL,
			saved_at TEXT NOT NULL
		)`, m.partition)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create partition %s: %w", m.partition, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upgrade: %w", err)
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, p Partition, id int64, doc []byte) error {
	if err := validPartition(p); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, doc, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, saved_at = excluded.saved_at`, p)
	if _, err := s.conn.ExecContext(ctx, stmt, id, string(doc), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("put %s/%d: %w", p, id, err)
	}
	return nil
}

func (s *SQLite) GetAll(ctx context.Context, p Partition) ([][]byte, error) {
	if err := validPartition(p); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("SELECT doc FROM %s", p))
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", p, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		docs = append(docs, []byte(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", p, err)
	}
	return docs, nil
}

func (s *SQLite) Clear(ctx context.Context, p Partition) error {
	if err := validPartition(p); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", p)); err != nil {
		return fmt.Errorf("clear %s: %w", p, err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context, p Partition) (int, error) {
	if err := validPartition(p); err != nil {
		return 0, err
	}
	var n int
	if err := s.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", p, err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the connection pool.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	s.conn = nil
	return nil
}
