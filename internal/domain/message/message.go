// ABOUTME: Command and notification model shared by every transport
// ABOUTME: Closed set of command kinds, parsed once at the edge
package message

import (
	"errors"
	"fmt"
	"maps"
)

// Kind is the first element of every wire tuple.
type Kind string

const (
	KindCommand      Kind = "command"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
)

// CommandKind enumerates the controls a client may issue.
type CommandKind int

const (
	Play CommandKind = iota
	Stop
	Next
	Previous
	Random
	VolumeUp
	VolumeDown
)

var ErrUnknownCommand = errors.New("unknown command")

var commandNames = [...]string{
	Play:       "play",
	Stop:       "stop",
	Next:       "next",
	Previous:   "previous",
	Random:     "random",
	VolumeUp:   "volume_up",
	VolumeDown: "volume_down",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandNames) {
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
	return commandNames[k]
}

// ParseCommandKind resolves a wire name to a CommandKind.
func ParseCommandKind(name string) (CommandKind, error) {
	for i, n := range commandNames {
		if n == name {
			return CommandKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Command is a decoded client request. Name keeps the raw wire name so an
// unknown command can still be reported back.
type Command struct {
	Name   string
	Args   map[string]any
	kind   CommandKind
	parsed bool
}

func NewCommand(kind CommandKind, args map[string]any) Command {
	return Command{Name: kind.String(), Args: maps.Clone(args), kind: kind, parsed: true}
}

// ParseCommand builds a Command from its wire name. Unknown names still
// yield a Command (so it can be queued and reported) together with
// ErrUnknownCommand.
func ParseCommand(name string, args map[string]any) (Command, error) {
	kind, err := ParseCommandKind(name)
	cmd := Command{Name: name, Args: maps.Clone(args), kind: kind, parsed: err == nil}
	return cmd, err
}

// Kind reports the command kind; ok is false for unknown names.
func (c Command) Kind() (CommandKind, bool) {
	return c.kind, c.parsed
}

// Float returns a numeric keyword argument.
func (c Command) Float(key string) (float64, bool) {
	switch v := c.Args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Stats maps a key to a scalar (string, number or bool).
type Stats map[string]any

// Notification is an outbound state update or error report.
type Notification struct {
	Kind    Kind
	Message string
	Stats   Stats
}

func Notify(stats Stats) Notification {
	return Notification{Kind: KindNotification, Stats: maps.Clone(stats)}
}

func Errorf(format string, args ...any) Notification {
	return Notification{Kind: KindError, Message: fmt.Sprintf(format, args...), Stats: Stats{}}
}

// IsError reports whether n is an error report.
func (n Notification) IsError() bool {
	return n.Kind == KindError
}

// Status returns stats["status"] or "".
func (n Notification) Status() string {
	s, _ := n.Stats["status"].(string)
	return s
}
