package tenant

import (
	"fmt"
	"sync"

	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/state"
)

// CommandKind tags a deferred command.
type CommandKind int

const (
	CmdSetState CommandKind = iota
	CmdUnsetState
	CmdResetState
	CmdFireEvent
)

func (k CommandKind) String() string {
	switch k {
	case CmdSetState:
		return "set"
	case CmdUnsetState:
		return "unset"
	case CmdResetState:
		return "reset"
	case CmdFireEvent:
		return "fire"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is a state mutation or notification deferred until commit.
type Command struct {
	Kind      CommandKind
	Namespace string
	Key       string
	Value     string
	Event     events.Event
}

// SetState defers a key write.
func SetState(namespace, key, value string) Command {
	return Command{Kind: CmdSetState, Namespace: namespace, Key: key, Value: value}
}

// UnsetState defers a key removal.
func UnsetState(namespace, key string) Command {
	return Command{Kind: CmdUnsetState, Namespace: namespace, Key: key}
}

// ResetState defers clearing a namespace.
func ResetState(namespace string) Command {
	return Command{Kind: CmdResetState, Namespace: namespace}
}

// FireEvent defers a notification.
func FireEvent(e events.Event) Command {
	return Command{Kind: CmdFireEvent, Event: e}
}

// IsState reports whether the command mutates state.
func (c Command) IsState() bool {
	return c.Kind != CmdFireEvent
}

// op converts a state command to a store op.
func (c Command) op() state.Op {
	switch c.Kind {
	case CmdUnsetState:
		return state.Op{Kind: state.OpUnset, Key: c.Key}
	case CmdResetState:
		return state.Op{Kind: state.OpClear}
	default:
		return state.Op{Kind: state.OpSet, Key: c.Key, Value: c.Value}
	}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdFireEvent:
		return fmt.Sprintf("fire %s", c.Event.Type)
	case CmdResetState:
		return fmt.Sprintf("reset %s", c.Namespace)
	case CmdUnsetState:
		return fmt.Sprintf("unset %s/%s", c.Namespace, c.Key)
	}
	return fmt.Sprintf("set %s/%s", c.Namespace, c.Key)
}

// Queue is a FIFO of commands. Appends are safe from any goroutine;
// draining is left to a single committer.
type Queue struct {
	mu       sync.Mutex
	commands []Command
}

// Append adds commands in order.
func (q *Queue) Append(cmds ...Command) {
	q.mu.Lock()
	q.commands = append(q.commands, cmds...)
	q.mu.Unlock()
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Drain removes and returns every pending command in append order.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	return out
}

// Discard drops every pending command and returns how many there were.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.commands)
	q.commands = nil
	return n
}

// Snapshot returns a copy of the pending commands.
func (q *Queue) Snapshot() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Command, len(q.commands))
	copy(out, q.commands)
	return out
}
