// Package nativemsg speaks the WebExtensions native messaging protocol:
// JSON messages on stdio, each preceded by its length as a 32-bit
// unsigned integer in native byte order.
//
// Bridge layers a small request/response protocol on top so that the Rally
// library can run in a native host while the browser side of the extension
// relays runtime messages, tab operations and self-uninstall.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kernel/rally/pkg/rally"
)

// MaxFrameSize is the largest message a browser will deliver to a native
// host.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("nativemsg: frame too large")

// FrameKind tells the receiver how to treat a Frame.
type FrameKind string

const (
	// KindSend asks the browser to deliver Message to Target.
	KindSend FrameKind = "send"
	// KindCall asks the browser to run a host API Method with Params.
	KindCall FrameKind = "call"
	// KindMessage carries an inbound external message to the native host.
	KindMessage FrameKind = "message"
	// KindReply answers the frame with the same ID.
	KindReply FrameKind = "reply"
)

// Frame is one native message.
type Frame struct {
	ID   uint64    `json:"id"`
	Kind FrameKind `json:"kind"`

	Channel rally.Channel  `json:"channel,omitempty"`
	Target  string         `json:"target,omitempty"`
	Sender  *rally.Sender  `json:"sender,omitempty"`
	Message *rally.Message `json:"message,omitempty"`

	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	Error string `json:"error,omitempty"`
}

// WriteFrame encodes v as one length-prefixed JSON message.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nativemsg: failed to encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(body))
	binary.NativeEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("nativemsg: failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON message into v. It returns
// io.EOF when r is exhausted before a new frame starts.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("nativemsg: truncated frame header: %w", err)
		}
		return err
	}
	n := binary.NativeEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("nativemsg: truncated frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("nativemsg: invalid frame: %w", err)
	}
	return nil
}
