// Package sqlite implements the catalog store on SQLite.
//
// Events, deployments, catalog links, attendees and assistants ownership
// tuples live in one database file opened in WAL mode with a single writer
// connection. Deployment endpoint keys are stored sealed and opened inside
// the lookup, so callers only ever see plaintext keys.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	modernc "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/security/sealbox"
	"mercator-hq/eventgate/pkg/store"
)

const backendName = "sqlite"

// Config configures the SQLite store.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// Box seals and opens endpoint keys. When nil keys are stored as given.
	Box *sealbox.Box

	// Counter supplies the per-key request count for the daily cap. When
	// nil no key is ever rate limited.
	Counter store.UsageCounter
}

// Store implements store.Store on SQLite.
type Store struct {
	db                 *sql.DB
	box                *sealbox.Box
	counter            store.UsageCounter
	checkpointInterval time.Duration
	now                func() time.Time
	logger             *slog.Logger
	done               chan struct{}
	closeOnce          sync.Once

	authStmt        *sql.Stmt
	lookupStmt      *sql.Stmt
	listStmt        *sql.Stmt
	eventStmt       *sql.Stmt
	attendeeStmt    *sql.Stmt
	insertAttStmt   *sql.Stmt
	addOwnerStmt    *sql.Stmt
	hasOwnerStmt    *sql.Stmt
	removeOwnerStmt *sql.Stmt
	listOwnedStmt   *sql.Stmt
	putEventStmt    *sql.Stmt
	putDepStmt      *sql.Stmt
	linkStmt        *sql.Stmt
}

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, store.NewStorageError(backendName, "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:                 db,
		box:                cfg.Box,
		counter:            cfg.Counter,
		checkpointInterval: cfg.CheckpointInterval,
		now:                time.Now,
		logger:             slog.Default().With("component", "store.sqlite"),
		done:               make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, store.NewStorageError(backendName, "init_schema", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, store.NewStorageError(backendName, "prepare", err)
	}

	go s.checkpointLoop()

	s.logger.Info("catalog store opened", "path", cfg.Path, "sealed_keys", cfg.Box != nil)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_code TEXT NOT NULL,
		event_markdown TEXT NOT NULL DEFAULT '',
		event_image_url TEXT NOT NULL DEFAULT '',
		organizer_name TEXT NOT NULL DEFAULT '',
		organizer_email TEXT NOT NULL DEFAULT '',
		start_ts INTEGER NOT NULL,
		end_ts INTEGER NOT NULL,
		time_zone_label TEXT NOT NULL DEFAULT 'UTC',
		time_zone_offset INTEGER NOT NULL DEFAULT 0,
		max_token_cap INTEGER NOT NULL DEFAULT 0,
		daily_request_cap INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS deployments (
		catalog_id TEXT PRIMARY KEY,
		deployment_name TEXT NOT NULL,
		model_type TEXT NOT NULL,
		endpoint_url TEXT NOT NULL,
		endpoint_key TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS event_catalog (
		event_id TEXT NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
		catalog_id TEXT NOT NULL REFERENCES deployments(catalog_id) ON DELETE CASCADE,
		PRIMARY KEY (event_id, catalog_id)
	);

	CREATE TABLE IF NOT EXISTS attendees (
		api_key TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		UNIQUE (event_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS owned_objects (
		api_key TEXT NOT NULL,
		object_id TEXT NOT NULL,
		object_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (api_key, object_id, object_type)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_name ON deployments(deployment_name);
	CREATE INDEX IF NOT EXISTS idx_attendees_event ON attendees(event_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	stmts := []struct {
		dst   **sql.Stmt
		name  string
		query string
	}{
		{&s.authStmt, "auth", `
			SELECT a.user_id, e.event_id, e.event_code, e.organizer_name, e.organizer_email,
			       e.event_image_url, e.max_token_cap, e.daily_request_cap
			FROM attendees a
			JOIN events e ON e.event_id = a.event_id
			WHERE a.api_key = ? AND a.active = 1 AND e.active = 1
			  AND e.start_ts <= ? AND e.end_ts >= ?`},
		{&s.lookupStmt, "lookup", `
			SELECT d.catalog_id, d.deployment_name, d.model_type, d.endpoint_url, d.endpoint_key, d.location
			FROM event_catalog ec
			JOIN deployments d ON d.catalog_id = ec.catalog_id
			WHERE ec.event_id = ? AND d.deployment_name = ? AND d.active = 1`},
		{&s.listStmt, "list", `
			SELECT d.catalog_id, d.deployment_name, d.model_type, d.endpoint_url, d.endpoint_key, d.location
			FROM event_catalog ec
			JOIN deployments d ON d.catalog_id = ec.catalog_id
			WHERE ec.event_id = ? AND d.active = 1`},
		{&s.eventStmt, "event", `
			SELECT event_id, event_code, event_markdown, event_image_url, organizer_name, organizer_email,
			       start_ts, end_ts, time_zone_label, time_zone_offset, max_token_cap, daily_request_cap, active
			FROM events WHERE event_id = ?`},
		{&s.attendeeStmt, "attendee", `
			SELECT api_key, event_id, user_id, active FROM attendees WHERE event_id = ? AND user_id = ?`},
		{&s.insertAttStmt, "insert_attendee", `
			INSERT INTO attendees (api_key, event_id, user_id, active, created_at) VALUES (?, ?, ?, 1, ?)`},
		{&s.addOwnerStmt, "add_owner", `
			INSERT OR IGNORE INTO owned_objects (api_key, object_id, object_type, created_at) VALUES (?, ?, ?, ?)`},
		{&s.hasOwnerStmt, "has_owner", `
			SELECT 1 FROM owned_objects WHERE api_key = ? AND object_id = ? AND object_type = ?`},
		{&s.removeOwnerStmt, "remove_owner", `
			DELETE FROM owned_objects WHERE api_key = ? AND object_id = ? AND object_type = ?`},
		{&s.listOwnedStmt, "list_owned", `
			SELECT object_id FROM owned_objects WHERE api_key = ? AND object_type = ? ORDER BY object_id`},
		{&s.putEventStmt, "put_event", `
			INSERT INTO events (event_id, event_code, event_markdown, event_image_url, organizer_name,
			                    organizer_email, start_ts, end_ts, time_zone_label, time_zone_offset,
			                    max_token_cap, daily_request_cap, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id) DO UPDATE SET
				event_code = excluded.event_code,
				event_markdown = excluded.event_markdown,
				event_image_url = excluded.event_image_url,
				organizer_name = excluded.organizer_name,
				organizer_email = excluded.organizer_email,
				start_ts = excluded.start_ts,
				end_ts = excluded.end_ts,
				time_zone_label = excluded.time_zone_label,
				time_zone_offset = excluded.time_zone_offset,
				max_token_cap = excluded.max_token_cap,
				daily_request_cap = excluded.daily_request_cap,
				active = excluded.active`},
		{&s.putDepStmt, "put_deployment", `
			INSERT INTO deployments (catalog_id, deployment_name, model_type, endpoint_url, endpoint_key, location, active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (catalog_id) DO UPDATE SET
				deployment_name = excluded.deployment_name,
				model_type = excluded.model_type,
				endpoint_url = excluded.endpoint_url,
				endpoint_key = excluded.endpoint_key,
				location = excluded.location,
				active = excluded.active`},
		{&s.linkStmt, "link", `
			INSERT OR IGNORE INTO event_catalog (event_id, catalog_id) VALUES (?, ?)`},
	}

	for _, st := range stmts {
		prepared, err := s.db.Prepare(st.query)
		if err != nil {
			return fmt.Errorf("failed to prepare %s statement: %w", st.name, err)
		}
		*st.dst = prepared
	}
	return nil
}

// CheckAuthorization implements store.AuthorizationStore.
func (s *Store) CheckAuthorization(ctx context.Context, apiKey string) (*gateway.Authorization, error) {
	now := s.now()
	auth := &gateway.Authorization{APIKey: apiKey}

	err := s.authStmt.QueryRowContext(ctx, apiKey, now.Unix(), now.Unix()).Scan(
		&auth.UserID,
		&auth.EventID,
		&auth.EventCode,
		&auth.OrganizerName,
		&auth.OrganizerEmail,
		&auth.EventImageURL,
		&auth.MaxTokenCap,
		&auth.DailyRequestCap,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.NewStorageError(backendName, "check_authorization", err)
	}

	if s.counter != nil && auth.DailyRequestCap > 0 {
		count, err := s.counter.CountSince(ctx, apiKey, store.StartOfDayUTC(now))
		if err != nil {
			return nil, store.NewStorageError(backendName, "count_usage", err)
		}
		auth.RateLimitExceeded = store.RateLimitExceeded(auth.DailyRequestCap, count)
	}

	return auth, nil
}

// LookupDeployment implements store.CatalogStore.
func (s *Store) LookupDeployment(ctx context.Context, eventID, name string) ([]gateway.Deployment, error) {
	rows, err := s.lookupStmt.QueryContext(ctx, eventID, name)
	if err != nil {
		return nil, store.NewStorageError(backendName, "lookup_deployment", err)
	}
	return s.scanDeployments(rows, "lookup_deployment")
}

// ListEventDeployments implements store.CatalogStore.
func (s *Store) ListEventDeployments(ctx context.Context, eventID string) ([]gateway.Deployment, error) {
	rows, err := s.listStmt.QueryContext(ctx, eventID)
	if err != nil {
		return nil, store.NewStorageError(backendName, "list_deployments", err)
	}
	return s.scanDeployments(rows, "list_deployments")
}

func (s *Store) scanDeployments(rows *sql.Rows, op string) ([]gateway.Deployment, error) {
	defer rows.Close()

	var out []gateway.Deployment
	for rows.Next() {
		var (
			d         gateway.Deployment
			modelType string
			sealed    string
		)
		if err := rows.Scan(&d.CatalogID, &d.DeploymentName, &modelType, &d.EndpointURL, &sealed, &d.Location); err != nil {
			return nil, store.NewStorageError(backendName, op, err)
		}
		d.ModelType = gateway.ModelType(modelType)

		key, err := s.openKey(sealed)
		if err != nil {
			return nil, store.NewStorageError(backendName, op, fmt.Errorf("catalog %s: %w", d.CatalogID, err))
		}
		d.EndpointKey = key
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError(backendName, op, err)
	}
	return out, nil
}

func (s *Store) openKey(stored string) (string, error) {
	if s.box == nil {
		return stored, nil
	}
	return s.box.Open(stored)
}

// GetEvent implements store.EventStore.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*gateway.Event, error) {
	var (
		ev         gateway.Event
		start, end int64
		active     bool
	)
	err := s.eventStmt.QueryRowContext(ctx, eventID).Scan(
		&ev.ID, &ev.Code, &ev.Markdown, &ev.ImageURL, &ev.OrganizerName, &ev.OrganizerEmail,
		&start, &end, &ev.TimeZoneLabel, &ev.TimeZoneOffset, &ev.MaxTokenCap, &ev.DailyRequestCap, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.NewStorageError(backendName, "get_event", err)
	}
	ev.Start = time.Unix(start, 0).UTC()
	ev.End = time.Unix(end, 0).UTC()
	ev.Active = active
	return &ev, nil
}

// RegisterAttendee implements store.AttendeeStore.
func (s *Store) RegisterAttendee(ctx context.Context, eventID, userID string) (*gateway.Attendee, bool, error) {
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	if !ev.Active {
		return nil, false, store.ErrNotFound
	}

	existing, err := s.GetAttendee(ctx, eventID, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	att := &gateway.Attendee{
		APIKey:  uuid.NewString(),
		EventID: eventID,
		UserID:  userID,
		Active:  true,
	}
	if _, err := s.insertAttStmt.ExecContext(ctx, att.APIKey, eventID, userID, s.now().Unix()); err != nil {
		if isUniqueViolation(err) {
			return nil, false, store.ErrConflict
		}
		return nil, false, store.NewStorageError(backendName, "register_attendee", err)
	}
	return att, true, nil
}

// GetAttendee implements store.AttendeeStore.
func (s *Store) GetAttendee(ctx context.Context, eventID, userID string) (*gateway.Attendee, error) {
	var att gateway.Attendee
	err := s.attendeeStmt.QueryRowContext(ctx, eventID, userID).Scan(&att.APIKey, &att.EventID, &att.UserID, &att.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.NewStorageError(backendName, "get_attendee", err)
	}
	return &att, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *modernc.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// AddOwnership implements store.OwnershipStore.
func (s *Store) AddOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) error {
	if _, err := s.addOwnerStmt.ExecContext(ctx, apiKey, id, string(t), s.now().Unix()); err != nil {
		return store.NewStorageError(backendName, "add_ownership", err)
	}
	return nil
}

// HasOwnership implements store.OwnershipStore.
func (s *Store) HasOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) (bool, error) {
	var one int
	err := s.hasOwnerStmt.QueryRowContext(ctx, apiKey, id, string(t)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, store.NewStorageError(backendName, "has_ownership", err)
	}
	return true, nil
}

// RemoveOwnership implements store.OwnershipStore.
func (s *Store) RemoveOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) error {
	if _, err := s.removeOwnerStmt.ExecContext(ctx, apiKey, id, string(t)); err != nil {
		return store.NewStorageError(backendName, "remove_ownership", err)
	}
	return nil
}

// ListOwned implements store.OwnershipStore.
func (s *Store) ListOwned(ctx context.Context, apiKey string, t gateway.ObjectType) ([]string, error) {
	rows, err := s.listOwnedStmt.QueryContext(ctx, apiKey, string(t))
	if err != nil {
		return nil, store.NewStorageError(backendName, "list_owned", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStorageError(backendName, "list_owned", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError(backendName, "list_owned", err)
	}
	return ids, nil
}

// PutEvent implements store.CatalogWriter.
func (s *Store) PutEvent(ctx context.Context, ev *gateway.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}
	tzLabel := ev.TimeZoneLabel
	if tzLabel == "" {
		tzLabel = "UTC"
	}
	_, err := s.putEventStmt.ExecContext(ctx,
		ev.ID, ev.Code, ev.Markdown, ev.ImageURL, ev.OrganizerName, ev.OrganizerEmail,
		ev.Start.Unix(), ev.End.Unix(), tzLabel, ev.TimeZoneOffset,
		ev.MaxTokenCap, ev.DailyRequestCap, ev.Active,
	)
	if err != nil {
		return store.NewStorageError(backendName, "put_event", err)
	}
	return nil
}

// PutDeployment implements store.CatalogWriter. The endpoint key is sealed
// before it is written.
func (s *Store) PutDeployment(ctx context.Context, d gateway.Deployment, active bool) error {
	if d.CatalogID == "" {
		return fmt.Errorf("catalog id cannot be empty")
	}
	key := d.EndpointKey
	if s.box != nil {
		sealed, err := s.box.Seal(key)
		if err != nil {
			return store.NewStorageError(backendName, "put_deployment", err)
		}
		key = sealed
	}
	_, err := s.putDepStmt.ExecContext(ctx,
		d.CatalogID, d.DeploymentName, string(d.ModelType), d.EndpointURL, key, d.Location, active)
	if err != nil {
		return store.NewStorageError(backendName, "put_deployment", err)
	}
	return nil
}

// LinkDeployment implements store.CatalogWriter.
func (s *Store) LinkDeployment(ctx context.Context, eventID, catalogID string) error {
	if _, err := s.linkStmt.ExecContext(ctx, eventID, catalogID); err != nil {
		return store.NewStorageError(backendName, "link_deployment", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)

		for _, st := range []*sql.Stmt{
			s.authStmt, s.lookupStmt, s.listStmt, s.eventStmt, s.attendeeStmt, s.insertAttStmt,
			s.addOwnerStmt, s.hasOwnerStmt, s.removeOwnerStmt, s.listOwnedStmt,
			s.putEventStmt, s.putDepStmt, s.linkStmt,
		} {
			if st != nil {
				st.Close()
			}
		}

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

var _ store.Store = (*Store)(nil)
