package publisher

import (
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is a notification emitted by the timeline core after a state change
type Event struct {
	ID        string              `json:"id"`
	EventName string              `json:"event_name"`
	BundleID  string              `json:"bundle_id,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Payload   jsoniter.RawMessage `json:"payload"`
}

// NewEvent marshals payload into a new event
func NewEvent(name, bundleID string, payload interface{}, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to marshal %s payload", name).
			Mark(ierr.ErrSystem)
	}

	return &Event{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_MESSAGE),
		EventName: name,
		BundleID:  bundleID,
		Timestamp: now.UTC(),
		Payload:   data,
	}, nil
}

// Decode unmarshals the event payload into v
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return ierr.WithError(err).
			WithHintf("invalid %s payload", e.EventName).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Unmarshal decodes an event from a message body
func Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("invalid event message").
			Mark(ierr.ErrValidation)
	}
	return &event, nil
}
