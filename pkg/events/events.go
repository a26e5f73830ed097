// Package events publishes spend notifications to downstream consumers.
//
// The ledger row is always the source of truth; events are a best-effort
// notification stream for billing, analytics and alerting pipelines.
// Publishers never block admission decisions on delivery.
package events

import (
	"context"
	"time"
)

// DefaultTopic is the topic spend events are written to when none is configured.
const DefaultTopic = "spend.recorded"

// SpendRecorded is emitted after a ledger entry commits.
type SpendRecorded struct {
	// EntryID is the ledger entry identifier.
	EntryID string `json:"entry_id"`

	// ResourceID is the API key the spend is attributed to.
	ResourceID string `json:"resource_id"`

	// AmountSats is the committed amount in satoshis.
	AmountSats int64 `json:"amount_sats"`

	// ExternalRef is the caller-supplied transaction reference, if any.
	ExternalRef string `json:"external_ref,omitempty"`

	// RecordedAt is the ledger commit time.
	RecordedAt time.Time `json:"recorded_at"`
}

// Publisher delivers spend events.
// Implementations must be safe for concurrent use.
type Publisher interface {
	// PublishSpend delivers one event. Errors are reported to the caller,
	// which decides whether to log or drop them.
	PublishSpend(ctx context.Context, event SpendRecorded) error

	// Close flushes pending events and releases resources.
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishSpend implements Publisher.
func (NopPublisher) PublishSpend(context.Context, SpendRecorded) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
