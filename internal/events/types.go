// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents different event types
type EventType string

const (
	// Operations confirmed by the remote service
	InvestmentMade         EventType = "INVESTMENT_MADE"
	ParticipationPurchased EventType = "PARTICIPATION_PURCHASED"
	ParticipationSold      EventType = "PARTICIPATION_SOLD"

	// Decision loop lifecycle
	ExecutionStarted   EventType = "EXECUTION_STARTED"
	ExecutionCompleted EventType = "EXECUTION_COMPLETED"
	ExecutionFailed    EventType = "EXECUTION_FAILED"

	RemoteFailure EventType = "REMOTE_FAILURE"

	// Daemon lifecycle
	TenantStarted EventType = "TENANT_STARTED"
	TenantStopped EventType = "TENANT_STOPPED"
)

// IsOperation reports whether the event records a submitted operation.
func (t EventType) IsOperation() bool {
	switch t {
	case InvestmentMade, ParticipationPurchased, ParticipationSold:
		return true
	}
	return false
}

// Event represents a notification about something a tenant did.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New builds an event with a fresh ID and typed data flattened into the Data map.
func New(eventType EventType, session string, data EventData) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Session:   session,
		Data:      convertEventDataToMap(data),
	}
}

// Decode fills v from the event's Data map.
func (e Event) Decode(v interface{}) error {
	jsonBytes, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap converts typed EventData to a plain map
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
