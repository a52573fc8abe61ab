package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finboard/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores sealed tokens in a local SQLite database so sessions
// survive a restart. It satisfies tokenstore.Backend.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Put(ctx context.Context, namespace, kind, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (namespace, kind, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, kind) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, kind, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, namespace, kind string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM tokens WHERE namespace = ? AND kind = ?`, namespace, kind).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select token: %w", err)
	}
	return value, true, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, namespace string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.logger.Debug("Deleted stored tokens", log.FieldSessionID, namespace, "rows", n)
	}
	return nil
}

// PurgeOlderThan removes tokens not written since cutoff and returns how many rows went.
func (r *SQLiteRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Info("Purged stale tokens", "rows", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}
