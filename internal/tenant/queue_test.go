package tenant

import (
	"testing"

	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/stretchr/testify/assert"
)

func TestQueue_DrainKeepsAppendOrder(t *testing.T) {
	var q Queue
	q.Append(SetState("ns", "a", "1"), FireEvent(events.Event{Type: events.InvestmentMade}))
	q.Append(UnsetState("ns", "b"))

	assert.Equal(t, 3, q.Len())
	cmds := q.Drain()
	assert.Equal(t, 0, q.Len())

	kinds := make([]CommandKind, 0, len(cmds))
	for _, c := range cmds {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []CommandKind{CmdSetState, CmdFireEvent, CmdUnsetState}, kinds)
}

func TestQueue_Discard(t *testing.T) {
	var q Queue
	q.Append(ResetState("ns"), SetState("ns", "a", "1"))

	assert.Equal(t, 2, q.Discard())
	assert.Equal(t, 0, q.Discard())
	assert.Empty(t, q.Drain())
}

func TestQueue_SnapshotIsCopy(t *testing.T) {
	var q Queue
	q.Append(SetState("ns", "a", "1"))

	snap := q.Snapshot()
	snap[0].Value = "changed"

	assert.Equal(t, "1", q.Snapshot()[0].Value)
}

func TestCommand_Op(t *testing.T) {
	assert.Equal(t, state.Op{Kind: state.OpSet, Key: "a", Value: "1"}, SetState("ns", "a", "1").op())
	assert.Equal(t, state.Op{Kind: state.OpUnset, Key: "a"}, UnsetState("ns", "a").op())
	assert.Equal(t, state.Op{Kind: state.OpClear}, ResetState("ns").op())
	assert.False(t, FireEvent(events.Event{}).IsState())
	assert.Equal(t, "set ns/a", SetState("ns", "a", "1").String())
}
