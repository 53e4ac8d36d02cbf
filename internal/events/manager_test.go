package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_FireDispatchesInOrder(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	var seen []string
	bus.Subscribe(func(e Event) error { seen = append(seen, "first:"+string(e.Type)); return nil })
	bus.Subscribe(func(e Event) error { seen = append(seen, "second:"+string(e.Type)); return nil })

	m.Fire(Event{Type: ExecutionStarted, Session: "alice"})

	assert.Equal(t, []string{"first:EXECUTION_STARTED", "second:EXECUTION_STARTED"}, seen)
}

func TestManager_FireStampsIDAndTimestamp(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	var got Event
	bus.Subscribe(func(e Event) error { got = e; return nil })
	m.Fire(Event{Type: TenantStarted})

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestManager_SubscriberFailuresAreSwallowed(t *testing.T) {
	bus := NewBus()
	var buf bytes.Buffer
	m := NewManager(bus, zerolog.New(&buf))

	reached := false
	bus.Subscribe(func(Event) error { return errors.New("broken") })
	bus.Subscribe(func(Event) error { panic("worse") })
	bus.Subscribe(func(Event) error { reached = true; return nil })

	assert.NotPanics(t, func() { m.Fire(Event{Type: RemoteFailure}) })
	assert.True(t, reached)
	assert.Contains(t, buf.String(), "Event subscriber failed")
	assert.Contains(t, buf.String(), "subscriber panic: worse")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	calls := 0
	unsubscribe := bus.Subscribe(func(Event) error { calls++; return nil })
	m.Fire(Event{Type: TenantStarted})
	unsubscribe()
	unsubscribe()
	m.Fire(Event{Type: TenantStarted})

	assert.Equal(t, 1, calls)
}

func TestEmitTyped_OperationData(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	var got Event
	bus.Subscribe(func(e Event) error { got = e; return nil })

	op := domain.Operation{Kind: domain.OperationPurchase, ItemID: 5, LoanID: 50, Rating: domain.RatingB, Amount: domain.NewMoney(200)}
	m.EmitTyped("alice", NewOperationData(op, true))

	assert.Equal(t, ParticipationPurchased, got.Type)
	assert.Equal(t, "alice", got.Session)
	assert.True(t, got.Type.IsOperation())

	var data OperationData
	require.NoError(t, got.Decode(&data))
	assert.Equal(t, op.ItemID, data.ItemID)
	assert.True(t, data.Amount.Equal(op.Amount))
	assert.True(t, data.DryRun)
	assert.Equal(t, op.Kind, data.Operation().Kind)
}

func TestEmitError(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	var got Event
	bus.Subscribe(func(e Event) error { got = e; return nil })
	m.EmitError("alice", "marketplace:poll", errors.New("timeout"))

	assert.Equal(t, ExecutionFailed, got.Type)
	assert.Equal(t, "timeout", got.Data["error"])
	assert.Equal(t, "marketplace:poll", got.Data["task"])
	assert.False(t, got.Type.IsOperation())
}

func TestOperationData_EventType(t *testing.T) {
	assert.Equal(t, InvestmentMade, (&OperationData{Kind: domain.OperationInvest}).EventType())
	assert.Equal(t, ParticipationPurchased, (&OperationData{Kind: domain.OperationPurchase}).EventType())
	assert.Equal(t, ParticipationSold, (&OperationData{Kind: domain.OperationSell}).EventType())
}
