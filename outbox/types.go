// Package outbox provides a durable local staging area for event
// envelopes whose handler fan-out failed, so an external scheduler can
// retry them without the EventStore itself ever retrying automatically.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is one staged event envelope awaiting a retried handler dispatch.
type Item struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	SequenceNumber int             `json:"sequence_number"`
	EventType      string          `json:"event_type"`
	EventJSON      json.RawMessage `json:"event_json"`
	LastError      string          `json:"last_error"`
	Retries        int             `json:"retries"`
	Timestamp      time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
