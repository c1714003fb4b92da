// ABOUTME: Wire codec for the control socket: (kind, payload, stats) tuples
// ABOUTME: JSON body behind a 4-byte big-endian length prefix
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/harper/radiod/internal/domain/message"
)

// MaxFrame bounds a single message body.
const MaxFrame = 1 << 20

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrMalformed     = errors.New("malformed message")
)

// Message is the logical unit exchanged in both directions.
type Message struct {
	Kind    message.Kind
	Payload string
	Stats   map[string]any
}

func FromCommand(c message.Command) Message {
	return Message{Kind: message.KindCommand, Payload: c.Name, Stats: c.Args}
}

func FromNotification(n message.Notification) Message {
	return Message{Kind: n.Kind, Payload: n.Message, Stats: n.Stats}
}

// Command converts a command tuple. An unknown command name still returns
// the Command along with message.ErrUnknownCommand.
func (m Message) Command() (message.Command, error) {
	if m.Kind != message.KindCommand {
		return message.Command{}, fmt.Errorf("%w: expected %s, got %q", ErrMalformed, message.KindCommand, m.Kind)
	}
	return message.ParseCommand(m.Payload, m.Stats)
}

func (m Message) Notification() (message.Notification, error) {
	if m.Kind != message.KindNotification && m.Kind != message.KindError {
		return message.Notification{}, fmt.Errorf("%w: not a notification: %q", ErrMalformed, m.Kind)
	}
	return message.Notification{Kind: m.Kind, Message: m.Payload, Stats: m.Stats}, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	var payload any
	if m.Payload != "" || m.Kind == message.KindCommand {
		payload = m.Payload
	}
	stats := m.Stats
	if stats == nil {
		stats = map[string]any{}
	}
	return json.Marshal([]any{m.Kind, payload, stats})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("%w: expected 3 elements, got %d", ErrMalformed, len(parts))
	}

	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return fmt.Errorf("%w: kind: %v", ErrMalformed, err)
	}

	var payload *string
	if err := json.Unmarshal(parts[1], &payload); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	stats := map[string]any{}
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &stats); err != nil {
			return fmt.Errorf("%w: stats: %v", ErrMalformed, err)
		}
		if stats == nil {
			stats = map[string]any{}
		}
	}

	m.Kind = message.Kind(kind)
	m.Payload = ""
	if payload != nil {
		m.Payload = *payload
	}
	m.Stats = stats
	return nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// WriteFrame writes the length prefix and body in a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrame {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame returns io.EOF only when the peer closed cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadMessage reads one frame and decodes it. A decode failure leaves the
// stream positioned at the next frame.
func ReadMessage(r io.Reader) (Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(body)
}
