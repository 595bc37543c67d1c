package types

import "mercator-hq/eventgate/pkg/gateway"

// RegisterResponse is returned by attendee registration.
type RegisterResponse struct {
	APIKey string `json:"api_key"`
}

// AttendeeResponse describes the caller's registration for an event.
type AttendeeResponse struct {
	APIKey string `json:"api_key"`
	Active bool   `json:"active"`
}

// EventInfoResponse is the authenticated view of the caller's event.
type EventInfoResponse struct {
	IsAuthorized   bool                 `json:"is_authorized"`
	MaxTokenCap    int                  `json:"max_token_cap"`
	EventCode      string               `json:"event_code"`
	EventImageURL  string               `json:"event_image_url"`
	OrganizerName  string               `json:"organizer_name"`
	OrganizerEmail string               `json:"organizer_email"`
	Capabilities   gateway.Capabilities `json:"capabilities"`
}

// EventResponse is the public registration metadata of an event.
type EventResponse struct {
	EventID        string `json:"event_id"`
	EventCode      string `json:"event_code"`
	EventMarkdown  string `json:"event_markdown"`
	EventImageURL  string `json:"event_image_url"`
	OrganizerName  string `json:"organizer_name"`
	OrganizerEmail string `json:"organizer_email"`
	StartTimestamp int64  `json:"start_timestamp"`
	EndTimestamp   int64  `json:"end_timestamp"`
	TimeZoneLabel  string `json:"time_zone_label"`
	TimeZoneOffset int    `json:"time_zone_offset"`
}

// NewEventResponse converts an event to its public shape. Timestamps are
// Unix seconds.
func NewEventResponse(e *gateway.Event) *EventResponse {
	return &EventResponse{
		EventID:        e.ID,
		EventCode:      e.Code,
		EventMarkdown:  e.Markdown,
		EventImageURL:  e.ImageURL,
		OrganizerName:  e.OrganizerName,
		OrganizerEmail: e.OrganizerEmail,
		StartTimestamp: e.Start.Unix(),
		EndTimestamp:   e.End.Unix(),
		TimeZoneLabel:  e.TimeZoneLabel,
		TimeZoneOffset: e.TimeZoneOffset,
	}
}
