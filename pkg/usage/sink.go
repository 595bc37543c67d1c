// Package usage meters completed upstream calls.
//
// The Sink extracts the usage object from an upstream response and appends
// it to the ledger before the request handler returns. A failed append is
// logged, counted and returned to the caller rather than dropped.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
)

// Publisher receives every persisted usage record.
type Publisher interface {
	Publish(rec gateway.UsageRecord)
}

// Sink persists usage records.
type Sink struct {
	recorder  store.UsageRecorder
	publisher Publisher
	metrics   *metrics.Collector
	now       func() time.Time
	logger    *slog.Logger
}

// NewSink creates a sink appending to recorder. publisher and collector
// may be nil.
func NewSink(recorder store.UsageRecorder, publisher Publisher, collector *metrics.Collector) *Sink {
	return &Sink{
		recorder:  recorder,
		publisher: publisher,
		metrics:   collector,
		now:       time.Now,
		logger:    slog.Default().With("component", "usage.sink"),
	}
}

// ExtractUsage returns the "usage" object of an upstream response body, or
// {} when the body is nil, not JSON, or carries no usage object.
func ExtractUsage(body []byte) json.RawMessage {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gateway.EmptyUsage
	}
	u := gjson.GetBytes(body, "usage")
	if !u.IsObject() {
		return gateway.EmptyUsage
	}
	return json.RawMessage(u.Raw)
}

// Record meters one request. body is the buffered upstream response, or nil
// for streamed responses whose usage is not observable.
func (s *Sink) Record(ctx context.Context, apiKey, eventID, catalogID string, body []byte) error {
	rec := gateway.UsageRecord{
		ID:        uuid.NewString(),
		APIKey:    apiKey,
		EventID:   eventID,
		CatalogID: catalogID,
		Usage:     ExtractUsage(body),
		Timestamp: s.now().UTC(),
	}

	if err := s.recorder.RecordUsage(ctx, rec); err != nil {
		s.metrics.RecordMeteringFailure()
		s.logger.ErrorContext(ctx, "failed to record usage",
			"event_id", eventID,
			"catalog_id", catalogID,
			"error", err,
		)
		return err
	}

	tokens := gjson.GetManyBytes(rec.Usage, "prompt_tokens", "completion_tokens", "total_tokens")
	s.metrics.RecordUsage(catalogID, tokens[0].Int(), tokens[1].Int(), tokens[2].Int())

	if s.publisher != nil {
		s.publisher.Publish(rec)
	}
	return nil
}
