package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DatabaseHealth reports diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	DirWritable      bool   `json:"dir_writable"`
	SchemaVersion    int    `json:"schema_version"`
	TablesPresent    bool   `json:"tables_present"`
	IntegrityCheck   string `json:"integrity_check"`
	QueuedActions    int    `json:"queued_actions"`
	DeadLetters      int    `json:"dead_letters"`
	FreeBytes        uint64 `json:"free_bytes"`
	Error            string `json:"error,omitempty"`
}

// CheckHealth returns diagnostic information about the queue database.
// It opens the store if necessary.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	dir := filepath.Dir(s.path)
	health.DirWritable = unix.Access(dir, unix.W_OK) == nil
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err == nil {
		health.FreeBytes = stat.Bavail * uint64(stat.Bsize)
	}

	db, err := s.conn(ctx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		health.DatabaseExists = true
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil && !errors.Is(err, sql.ErrNoRows) {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var tables int
	if err := db.QueryRowContext(connCtx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name IN ('queued_actions', 'dead_letters')",
	).Scan(&tables); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TablesPresent = tables == 2

	if err := db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&health.IntegrityCheck); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}

	if health.TablesPresent {
		if err := db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM queued_actions").Scan(&health.QueuedActions); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count actions: %w", err)
		}
		if err := db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM dead_letters").Scan(&health.DeadLetters); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count dead letters: %w", err)
		}
	}
	return health, nil
}

// Healthy reports whether the database is usable.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseReadable && h.TablesPresent && h.IntegrityCheck == "ok" && h.SchemaVersion == schemaVersion
}
