// Package memory provides an in-process implementation of the store
// interfaces for tests and development runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
)

type deploymentRow struct {
	dep    gateway.Deployment
	active bool
}

type ownerKey struct {
	apiKey string
	id     string
	typ    gateway.ObjectType
}

// Store is a mutex-guarded in-memory store. It also records usage so that
// the daily cap check works without a separate ledger.
type Store struct {
	mu          sync.RWMutex
	events      map[string]*gateway.Event
	deployments map[string]deploymentRow
	links       map[string][]string // event id -> catalog ids
	attendees   map[string]*gateway.Attendee
	owned       map[ownerKey]struct{}
	usage       []gateway.UsageRecord

	counter store.UsageCounter
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		events:      make(map[string]*gateway.Event),
		deployments: make(map[string]deploymentRow),
		links:       make(map[string][]string),
		attendees:   make(map[string]*gateway.Attendee),
		owned:       make(map[ownerKey]struct{}),
		now:         time.Now,
	}
}

// WithClock replaces the store clock. It is intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithUsageCounter makes CheckAuthorization count requests through c instead
// of the records appended to this store.
func (s *Store) WithUsageCounter(c store.UsageCounter) *Store {
	s.counter = c
	return s
}

// PutEvent implements store.CatalogWriter.
func (s *Store) PutEvent(_ context.Context, ev *gateway.Event) error {
	cp := *ev
	s.mu.Lock()
	s.events[ev.ID] = &cp
	s.mu.Unlock()
	return nil
}

// PutDeployment implements store.CatalogWriter.
func (s *Store) PutDeployment(_ context.Context, d gateway.Deployment, active bool) error {
	s.mu.Lock()
	s.deployments[d.CatalogID] = deploymentRow{dep: d, active: active}
	s.mu.Unlock()
	return nil
}

// LinkDeployment implements store.CatalogWriter.
func (s *Store) LinkDeployment(_ context.Context, eventID, catalogID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.links[eventID], catalogID) {
		s.links[eventID] = append(s.links[eventID], catalogID)
	}
	return nil
}

// PutAttendee inserts or replaces an attendee row.
func (s *Store) PutAttendee(att gateway.Attendee) {
	s.mu.Lock()
	s.attendees[att.APIKey] = &att
	s.mu.Unlock()
}

// CheckAuthorization implements store.AuthorizationStore.
func (s *Store) CheckAuthorization(ctx context.Context, apiKey string) (*gateway.Authorization, error) {
	now := s.now()

	s.mu.RLock()
	att, ok := s.attendees[apiKey]
	var ev *gateway.Event
	if ok {
		ev = s.events[att.EventID]
	}
	s.mu.RUnlock()

	if !ok || !att.Active || ev == nil || !ev.Open(now) {
		return nil, store.ErrNotFound
	}

	count, err := s.countSince(ctx, apiKey, store.StartOfDayUTC(now))
	if err != nil {
		return nil, store.NewStorageError("memory", "count_usage", err)
	}

	return &gateway.Authorization{
		APIKey:            apiKey,
		UserID:            att.UserID,
		EventID:           ev.ID,
		EventCode:         ev.Code,
		OrganizerName:     ev.OrganizerName,
		OrganizerEmail:    ev.OrganizerEmail,
		EventImageURL:     ev.ImageURL,
		MaxTokenCap:       ev.MaxTokenCap,
		DailyRequestCap:   ev.DailyRequestCap,
		RateLimitExceeded: store.RateLimitExceeded(ev.DailyRequestCap, count),
	}, nil
}

func (s *Store) countSince(ctx context.Context, apiKey string, since time.Time) (int, error) {
	if s.counter != nil {
		return s.counter.CountSince(ctx, apiKey, since)
	}
	return s.CountSince(ctx, apiKey, since)
}

// LookupDeployment implements store.CatalogStore.
func (s *Store) LookupDeployment(ctx context.Context, eventID, name string) ([]gateway.Deployment, error) {
	all, err := s.ListEventDeployments(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var out []gateway.Deployment
	for _, d := range all {
		if d.DeploymentName == name {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListEventDeployments implements store.CatalogStore.
func (s *Store) ListEventDeployments(_ context.Context, eventID string) ([]gateway.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []gateway.Deployment
	for _, id := range s.links[eventID] {
		row, ok := s.deployments[id]
		if ok && row.active {
			out = append(out, row.dep)
		}
	}
	return out, nil
}

// GetEvent implements store.EventStore.
func (s *Store) GetEvent(_ context.Context, eventID string) (*gateway.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// RegisterAttendee implements store.AttendeeStore.
func (s *Store) RegisterAttendee(_ context.Context, eventID, userID string) (*gateway.Attendee, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok || !ev.Active {
		return nil, false, store.ErrNotFound
	}
	for _, att := range s.attendees {
		if att.EventID == eventID && att.UserID == userID {
			cp := *att
			return &cp, false, nil
		}
	}

	att := &gateway.Attendee{
		APIKey:  uuid.NewString(),
		EventID: eventID,
		UserID:  userID,
		Active:  true,
	}
	s.attendees[att.APIKey] = att
	cp := *att
	return &cp, true, nil
}

// GetAttendee implements store.AttendeeStore.
func (s *Store) GetAttendee(_ context.Context, eventID, userID string) (*gateway.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, att := range s.attendees {
		if att.EventID == eventID && att.UserID == userID {
			cp := *att
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// AddOwnership implements store.OwnershipStore.
func (s *Store) AddOwnership(_ context.Context, apiKey, id string, t gateway.ObjectType) error {
	s.mu.Lock()
	s.owned[ownerKey{apiKey, id, t}] = struct{}{}
	s.mu.Unlock()
	return nil
}

// HasOwnership implements store.OwnershipStore.
func (s *Store) HasOwnership(_ context.Context, apiKey, id string, t gateway.ObjectType) (bool, error) {
	s.mu.RLock()
	_, ok := s.owned[ownerKey{apiKey, id, t}]
	s.mu.RUnlock()
	return ok, nil
}

// RemoveOwnership implements store.OwnershipStore.
func (s *Store) RemoveOwnership(_ context.Context, apiKey, id string, t gateway.ObjectType) error {
	s.mu.Lock()
	delete(s.owned, ownerKey{apiKey, id, t})
	s.mu.Unlock()
	return nil
}

// ListOwned implements store.OwnershipStore.
func (s *Store) ListOwned(_ context.Context, apiKey string, t gateway.ObjectType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for k := range s.owned {
		if k.apiKey == apiKey && k.typ == t {
			ids = append(ids, k.id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// RecordUsage implements store.UsageRecorder.
func (s *Store) RecordUsage(_ context.Context, rec gateway.UsageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.mu.Lock()
	s.usage = append(s.usage, rec)
	s.mu.Unlock()
	return nil
}

// CountSince implements store.UsageCounter.
func (s *Store) CountSince(_ context.Context, apiKey string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.usage {
		if rec.APIKey == apiKey && !rec.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// UsageRecords returns a copy of every recorded usage row.
func (s *Store) UsageRecords() []gateway.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.usage)
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

var (
	_ store.Store         = (*Store)(nil)
	_ store.UsageRecorder = (*Store)(nil)
	_ store.UsageCounter  = (*Store)(nil)
)
