package gateway

import (
	"encoding/json"
	"time"
)

// ModelType identifies the kind of upstream deployment in an event catalog.
type ModelType string

// Model types known to the catalog.
const (
	ModelTypeChat       ModelType = "openai-chat"
	ModelTypeEmbedding  ModelType = "openai-embedding"
	ModelTypeImage      ModelType = "openai-image"
	ModelTypeWhisper    ModelType = "openai-whisper"
	ModelTypeCompletion ModelType = "openai-completion"
	ModelTypeSearch     ModelType = "azure-ai-search"
	ModelTypeAssistant  ModelType = "openai-assistant"
)

// ModelTypes lists every known model type.
var ModelTypes = []ModelType{
	ModelTypeChat,
	ModelTypeEmbedding,
	ModelTypeImage,
	ModelTypeWhisper,
	ModelTypeCompletion,
	ModelTypeSearch,
	ModelTypeAssistant,
}

// Valid reports whether t is a known model type.
func (t ModelType) Valid() bool {
	for _, known := range ModelTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Deployment is one upstream endpoint from an event catalog.
// Values are immutable once returned by a store.
type Deployment struct {
	// CatalogID is the catalog row identifier, recorded with usage.
	CatalogID string

	// DeploymentName is the name callers address and the name substituted
	// into upstream path templates.
	DeploymentName string

	// ModelType is the kind of deployment.
	ModelType ModelType

	// EndpointURL is the upstream base URL.
	EndpointURL string

	// EndpointKey is the decrypted upstream secret.
	EndpointKey string

	// Location is an informational region label.
	Location string
}

// Capabilities maps each model type to the sorted, distinct deployment
// names an event exposes.
type Capabilities map[ModelType][]string

// Authorization is the snapshot returned by an authorization lookup for one
// API key. It is cached as a whole and never mutated.
type Authorization struct {
	APIKey            string
	UserID            string
	EventID           string
	EventCode         string
	OrganizerName     string
	OrganizerEmail    string
	EventImageURL     string
	MaxTokenCap       int
	DailyRequestCap   int
	RateLimitExceeded bool
}

// Event is the public and private metadata of a time-bounded event.
type Event struct {
	ID              string
	Code            string
	Markdown        string
	ImageURL        string
	OrganizerName   string
	OrganizerEmail  string
	Start           time.Time
	End             time.Time
	TimeZoneLabel   string
	TimeZoneOffset  int
	MaxTokenCap     int
	DailyRequestCap int
	Active          bool
}

// Open reports whether the event is active and now falls inside its window.
func (e *Event) Open(now time.Time) bool {
	return e.Active && !now.Before(e.Start) && !now.After(e.End)
}

// Attendee is a registered participant of an event.
type Attendee struct {
	APIKey  string
	EventID string
	UserID  string
	Active  bool
}

// Principal is the identity decoded from a client principal blob.
type Principal struct {
	UserID           string `json:"userId"`
	IdentityProvider string `json:"identityProvider,omitempty"`
	UserDetails      string `json:"userDetails,omitempty"`
}

// UsageRecord is one append-only metering row.
type UsageRecord struct {
	ID        string          `json:"id"`
	APIKey    string          `json:"-"`
	EventID   string          `json:"event_id"`
	CatalogID string          `json:"catalog_id"`
	Usage     json.RawMessage `json:"usage"`
	Timestamp time.Time       `json:"timestamp"`
}

// ObjectType is the kind of an assistants-API object owned by an attendee.
type ObjectType string

// Owned object types.
const (
	ObjectAssistant ObjectType = "assistant"
	ObjectThread    ObjectType = "thread"
	ObjectFile      ObjectType = "file"
)
