// Package store defines the persistence interfaces the gateway consumes.
//
// The gateway treats the store as an opaque keyed lookup plus an append-only
// metering sink. Implementations live in the sqlite and memory subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/eventgate/pkg/gateway"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write loses a uniqueness race.
	ErrConflict = errors.New("conflict")
)

// AuthorizationStore answers whether an API key belongs to an active,
// in-window event attendee.
type AuthorizationStore interface {
	// CheckAuthorization returns ErrNotFound when the key does not
	// correspond to an active attendee of an open event.
	CheckAuthorization(ctx context.Context, apiKey string) (*gateway.Authorization, error)
}

// CatalogStore resolves event catalog deployments. Endpoint keys are
// returned decrypted.
type CatalogStore interface {
	// LookupDeployment returns every active deployment of the event named
	// name. An empty result is not an error.
	LookupDeployment(ctx context.Context, eventID, name string) ([]gateway.Deployment, error)

	// ListEventDeployments returns every active deployment bound to the
	// event, possibly with duplicate names.
	ListEventDeployments(ctx context.Context, eventID string) ([]gateway.Deployment, error)
}

// UsageRecorder appends metering records.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec gateway.UsageRecord) error
}

// UsageCounter counts metered requests for an API key.
type UsageCounter interface {
	CountSince(ctx context.Context, apiKey string, since time.Time) (int, error)
}

// EventStore reads event metadata.
type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (*gateway.Event, error)
}

// AttendeeStore manages event registrations.
type AttendeeStore interface {
	// RegisterAttendee returns the attendee for (eventID, userID), creating
	// it with a fresh API key if needed. created reports whether a row was
	// inserted. An unknown or inactive event yields ErrNotFound.
	RegisterAttendee(ctx context.Context, eventID, userID string) (att *gateway.Attendee, created bool, err error)

	GetAttendee(ctx context.Context, eventID, userID string) (*gateway.Attendee, error)
}

// OwnershipStore tracks which API key created which assistants object.
type OwnershipStore interface {
	AddOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) error
	HasOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) (bool, error)
	RemoveOwnership(ctx context.Context, apiKey, id string, t gateway.ObjectType) error
	ListOwned(ctx context.Context, apiKey string, t gateway.ObjectType) ([]string, error)
}

// CatalogWriter seeds events, deployments and catalog links.
type CatalogWriter interface {
	PutEvent(ctx context.Context, ev *gateway.Event) error

	// PutDeployment upserts a deployment. EndpointKey is plaintext; the
	// implementation seals it if it supports sealing.
	PutDeployment(ctx context.Context, d gateway.Deployment, active bool) error

	LinkDeployment(ctx context.Context, eventID, catalogID string) error
}

// Store is the full catalog store used by the server.
type Store interface {
	AuthorizationStore
	CatalogStore
	EventStore
	AttendeeStore
	OwnershipStore
	CatalogWriter

	Ping(ctx context.Context) error
	Close() error
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "sqlite", "memory"
	Operation string // operation that failed
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// StartOfDayUTC returns midnight UTC of the day containing t. Daily request
// caps are counted from this instant.
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RateLimitExceeded reports whether count has reached a nonzero daily cap.
func RateLimitExceeded(dailyCap, count int) bool {
	return dailyCap > 0 && count >= dailyCap
}
