package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/proxy/types"
	"mercator-hq/eventgate/pkg/security/auth"
	"mercator-hq/eventgate/pkg/store"
)

// EventHandler serves the attendee registration and event metadata routes.
type EventHandler struct {
	attendees store.AttendeeStore
	events    store.EventStore
	resolver  CatalogResolver
	logger    *slog.Logger
}

// NewEventHandler creates the event and attendee handler.
func NewEventHandler(attendees store.AttendeeStore, events store.EventStore, resolver CatalogResolver) *EventHandler {
	return &EventHandler{
		attendees: attendees,
		events:    events,
		resolver:  resolver,
		logger:    slog.Default().With("component", "attendee"),
	}
}

// Register handles POST /attendee/event/{eventId}/register. Registering
// twice returns the existing key.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, "attendee")

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Unauthorized."))
		return
	}
	eventID := chi.URLParam(r, "eventId")

	att, created, err := h.attendees.RegisterAttendee(ctx, eventID, p.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		proxy.WriteError(w, r, gateway.NotFound("Event not found."))
		return
	case errors.Is(err, store.ErrConflict):
		proxy.WriteError(w, r, gateway.Conflict("conflict, please retry"))
		return
	case err != nil:
		proxy.WriteError(w, r, err)
		return
	}

	if created {
		h.logger.InfoContext(ctx, "attendee registered", "event_id", eventID, "user_id", p.UserID)
	}
	if err := proxy.WriteJSONResponse(w, http.StatusCreated, types.RegisterResponse{APIKey: att.APIKey}); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Attendee handles GET /attendee/event/{eventId}.
func (h *EventHandler) Attendee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, "attendee")

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Unauthorized."))
		return
	}

	att, err := h.attendees.GetAttendee(ctx, chi.URLParam(r, "eventId"), p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		proxy.WriteError(w, r, gateway.NotFound("Attendee not found."))
		return
	}
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	resp := types.AttendeeResponse{APIKey: att.APIKey, Active: att.Active}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// EventInfo handles POST /eventinfo for an authenticated attendee. It is
// answered even when the daily cap is spent so clients can show why.
func (h *EventHandler) EventInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, "eventinfo")

	rc, ok := gateway.FromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Missing API key."))
		return
	}

	caps, err := h.resolver.Capabilities(ctx, rc.EventID)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	resp := types.EventInfoResponse{
		IsAuthorized:   rc.IsAuthorized(),
		MaxTokenCap:    rc.MaxTokenCap,
		EventCode:      rc.EventCode,
		EventImageURL:  rc.EventImageURL,
		OrganizerName:  rc.OrganizerName,
		OrganizerEmail: rc.OrganizerEmail,
		Capabilities:   caps,
	}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Event handles GET /event/{eventId}. Inactive events are not listed.
func (h *EventHandler) Event(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, "event")

	ev, err := h.events.GetEvent(ctx, chi.URLParam(r, "eventId"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !ev.Active) {
		proxy.WriteError(w, r, gateway.NotFound("Event not found."))
		return
	}
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, types.NewEventResponse(ev)); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
