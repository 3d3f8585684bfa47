// Package journal keeps a local SQLite record of every publish attempt.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mbrazalez/CEP4Pollution/pkg/types"
)

const insertPublishSQL = `INSERT INTO publishes (topic, station, ts, value, published) VALUES (?, ?, ?, ?, ?)`

type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal at path and applies pending migrations.
// If logger is nil, slog.Default() is used.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := journalDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}

	if err := migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}

	logger.Info("journal opened", "path", path)
	return &Journal{db: db, logger: logger}, nil
}

// journalDSN creates the parent directory of path and returns the go-sqlite3
// DSN the journal is opened with.
func journalDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("journal dir: %w", err)
	}

	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode(), nil
}

// Record stores one publish attempt.
func (j *Journal) Record(ctx context.Context, topic string, r types.Reading, published bool) error {
	_, err := j.db.ExecContext(ctx, insertPublishSQL, topic, string(r.Station), r.Timestamp, r.Value, published)
	if err != nil {
		return fmt.Errorf("insert publish: %w", err)
	}
	return nil
}

// Count returns the number of recorded attempts.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publishes`).Scan(&n)
	return n, err
}

// CountByTopic returns recorded attempts per topic.
func (j *Journal) CountByTopic(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT topic, COUNT(*) FROM publishes GROUP BY topic`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			j.logger.Error("close topic count rows", "error", err)
		}
	}()

	out := make(map[string]int)
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, err
		}
		out[topic] = n
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
