// Package storage implements the append-only usage ledger on SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
)

const backendName = "sqlite"

// Schema creates the usage ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id TEXT PRIMARY KEY,
    api_key TEXT NOT NULL,
    event_id TEXT NOT NULL,
    catalog_id TEXT NOT NULL,
    usage_json TEXT NOT NULL DEFAULT '{}',
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_api_key_time ON usage_records(api_key, recorded_at);
CREATE INDEX IF NOT EXISTS idx_usage_event_time ON usage_records(event_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_usage_recorded_at ON usage_records(recorded_at);
`

// Config contains configuration for the usage ledger.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// RetryAttempts is how many times an append is attempted when SQLite
	// reports busy or locked.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the fixed wait between attempts.
	// Default: 200ms
	RetryBackoff time.Duration
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:          "data/usage.db",
		MaxOpenConns:  10,
		MaxIdleConns:  5,
		WALMode:       true,
		BusyTimeout:   5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  200 * time.Millisecond,
	}
}

// DeploymentUsage aggregates usage for one catalog deployment.
type DeploymentUsage struct {
	CatalogID        string `json:"catalog_id"`
	Requests         int64  `json:"requests"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// Ledger is the SQLite usage ledger. It implements store.UsageRecorder and
// store.UsageCounter.
type Ledger struct {
	db        *sql.DB
	config    *Config
	logger    *slog.Logger
	closeOnce sync.Once

	insertStmt *sql.Stmt
	countStmt  *sql.Stmt
	pruneStmt  *sql.Stmt
}

// NewLedger opens the ledger database and creates its schema.
func NewLedger(config *Config) (*Ledger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}

	logger := slog.Default().With("component", "usage.storage.sqlite")

	// Connection-scoped pragmas go in the DSN so every pooled connection
	// gets them.
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", config.Path, config.BusyTimeout.Milliseconds())
	if config.WALMode {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, store.NewStorageError(backendName, "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	l := &Ledger{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("usage ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return l, nil
}

func (l *Ledger) initialize() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return store.NewStorageError(backendName, "create_schema", err)
	}

	var err error
	l.insertStmt, err = l.db.Prepare(`
		INSERT INTO usage_records (
			id, api_key, event_id, catalog_id, usage_json,
			prompt_tokens, completion_tokens, total_tokens, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return store.NewStorageError(backendName, "prepare_insert", err)
	}

	l.countStmt, err = l.db.Prepare(`
		SELECT COUNT(*) FROM usage_records WHERE api_key = ? AND recorded_at >= ?`)
	if err != nil {
		return store.NewStorageError(backendName, "prepare_count", err)
	}

	l.pruneStmt, err = l.db.Prepare(`DELETE FROM usage_records WHERE recorded_at < ?`)
	if err != nil {
		return store.NewStorageError(backendName, "prepare_prune", err)
	}

	return nil
}

// RecordUsage appends one record. Busy and locked conditions are retried
// RetryAttempts times with a fixed RetryBackoff; any other failure returns
// immediately.
func (l *Ledger) RecordUsage(ctx context.Context, rec gateway.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	usageJSON := string(rec.Usage)
	if usageJSON == "" {
		usageJSON = string(gateway.EmptyUsage)
	}
	tokens := gjson.GetMany(usageJSON, "prompt_tokens", "completion_tokens", "total_tokens")

	var err error
	for attempt := 1; attempt <= l.config.RetryAttempts; attempt++ {
		_, err = l.insertStmt.ExecContext(ctx,
			rec.ID, rec.APIKey, rec.EventID, rec.CatalogID, usageJSON,
			tokens[0].Int(), tokens[1].Int(), tokens[2].Int(),
			rec.Timestamp.UnixMilli(),
		)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == l.config.RetryAttempts {
			break
		}

		l.logger.Warn("usage append hit a transient error, retrying",
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return store.NewStorageError(backendName, "record_usage", ctx.Err())
		case <-time.After(l.config.RetryBackoff):
		}
	}

	return store.NewStorageError(backendName, "record_usage", err)
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// CountSince returns how many records apiKey has at or after since.
func (l *Ledger) CountSince(ctx context.Context, apiKey string, since time.Time) (int, error) {
	var n int
	if err := l.countStmt.QueryRowContext(ctx, apiKey, since.UnixMilli()).Scan(&n); err != nil {
		return 0, store.NewStorageError(backendName, "count_since", err)
	}
	return n, nil
}

// Summary aggregates an event's usage since the given time by catalog
// deployment, ordered by catalog id.
func (l *Ledger) Summary(ctx context.Context, eventID string, since time.Time) ([]DeploymentUsage, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT catalog_id, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		FROM usage_records
		WHERE event_id = ? AND recorded_at >= ?
		GROUP BY catalog_id
		ORDER BY catalog_id`,
		eventID, since.UnixMilli())
	if err != nil {
		return nil, store.NewStorageError(backendName, "summary", err)
	}
	defer rows.Close()

	var out []DeploymentUsage
	for rows.Next() {
		var u DeploymentUsage
		if err := rows.Scan(&u.CatalogID, &u.Requests, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens); err != nil {
			return nil, store.NewStorageError(backendName, "summary", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError(backendName, "summary", err)
	}
	return out, nil
}

// Prune deletes records older than before and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.pruneStmt.ExecContext(ctx, before.UnixMilli())
	if err != nil {
		return 0, store.NewStorageError(backendName, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStorageError(backendName, "prune", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the database. It is safe to call more than once.
func (l *Ledger) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		for _, st := range []*sql.Stmt{l.insertStmt, l.countStmt, l.pruneStmt} {
			if st != nil {
				st.Close()
			}
		}
		closeErr = l.db.Close()
		l.logger.Info("usage ledger closed")
	})
	return closeErr
}

var (
	_ store.UsageRecorder = (*Ledger)(nil)
	_ store.UsageCounter  = (*Ledger)(nil)
)
