package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink accepts notifications. Fire never fails and never panics back to the caller.
type Sink interface {
	Fire(event Event)
}

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus exposes the underlying bus for subscriptions.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Fire logs the event and dispatches it to every subscriber.
// Subscriber errors and panics are logged and swallowed.
func (m *Manager) Fire(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to encode event")
	} else {
		m.log.Info().
			Str("event_type", string(event.Type)).
			Str("tenant", event.Session).
			RawJSON("event", eventJSON).
			Msg("Event emitted")
	}

	for _, h := range m.bus.snapshot() {
		if err := m.dispatch(h, event); err != nil {
			m.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Event subscriber failed")
		}
	}
}

// EmitTyped builds and fires an event with typed data
func (m *Manager) EmitTyped(session string, data EventData) {
	m.Fire(New(data.EventType(), session, data))
}

// EmitError fires an ExecutionFailed event for err
func (m *Manager) EmitError(session, task string, err error) {
	m.Fire(New(ExecutionFailed, session, &FailureData{Task: task, Error: err.Error()}))
}

func (m *Manager) dispatch(h Handler, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subscriber panic: %v", p)
		}
	}()
	return h(event)
}
