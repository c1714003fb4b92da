// ABOUTME: Tests for the control socket wire codec
// ABOUTME: Verifies tuple shape, framing, and malformed input handling
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/harper/radiod/internal/domain/message"
)

func TestEncode_CommandTuple(t *testing.T) {
	body, err := Encode(FromCommand(message.NewCommand(message.Play, nil)))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := `["command","play",{}]`
	if string(body) != expected {
		t.Errorf("expected %s, got %s", expected, body)
	}
}

func TestEncode_NotificationWithoutMessage(t *testing.T) {
	n := message.Notify(message.Stats{"status": "playing"})
	body, err := Encode(FromNotification(n))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := `["notification",null,{"status":"playing"}]`
	if string(body) != expected {
		t.Errorf("expected %s, got %s", expected, body)
	}
}

func TestDecode_Command(t *testing.T) {
	m, err := Decode([]byte(`["command","volume_up",{"step":0.1}]`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	cmd, err := m.Command()
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if kind, _ := cmd.Kind(); kind != message.VolumeUp {
		t.Errorf("expected volume_up, got %v", kind)
	}
	if step, ok := cmd.Float("step"); !ok || step != 0.1 {
		t.Errorf("expected step 0.1, got %v", step)
	}
}

func TestDecode_UnknownCommandKeepsName(t *testing.T) {
	m, err := Decode([]byte(`["command","rewind"]`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	cmd, err := m.Command()
	if !errors.Is(err, message.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if cmd.Name != "rewind" {
		t.Errorf("expected name rewind, got %q", cmd.Name)
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"kind":"command"}`,
		`["command"]`,
		`[1,"play",{}]`,
		`["command","play",[]]`,
	}

	for _, in := range inputs {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestMessage_NotificationKindCheck(t *testing.T) {
	m := Message{Kind: message.KindCommand, Payload: "play"}
	if _, err := m.Notification(); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteMessage(&buf, FromCommand(message.NewCommand(message.Stop, nil))); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := WriteMessage(&buf, FromCommand(message.NewCommand(message.Next, nil))); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	for _, want := range []string{"stop", "next"} {
		m, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		if m.Payload != want {
			t.Errorf("expected %s, got %s", want, m.Payload)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected io.EOF at clean end, got %v", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(10))
	buf.WriteString("short")

	if _, err := ReadFrame(&buf); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(MaxFrame+1))

	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadMessage_MalformedKeepsStreamAligned(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte(`garbage`))
	WriteMessage(&buf, FromCommand(message.NewCommand(message.Play, nil)))

	if _, err := ReadMessage(&buf); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	m, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage after malformed frame failed: %v", err)
	}
	if m.Payload != "play" {
		t.Errorf("expected play, got %q", m.Payload)
	}
}
