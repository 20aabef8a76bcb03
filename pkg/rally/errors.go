package rally

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStateChangeCallback is returned by New when no state change
	// observer is configured.
	ErrMissingStateChangeCallback = errors.New("rally: initialization failed, state change callback is required")

	// ErrInvalidConfig is returned by New for configuration that cannot work
	// for the selected variant.
	ErrInvalidConfig = errors.New("rally: invalid configuration")

	// ErrNotEnrolled means the companion answered the handshake but the
	// participant has not enrolled yet.
	ErrNotEnrolled = errors.New("rally: companion is present but the participant is not enrolled")

	// ErrWebControlForbidden rejects web channel traffic in variants that do
	// not treat the web origin as a control authority.
	ErrWebControlForbidden = errors.New("rally: web channel control is not allowed for this variant")

	// ErrRateLimited rejects a web channel message when its origin exceeded
	// the configured rate.
	ErrRateLimited = errors.New("rally: too many messages from sender")
)

// InvalidKeyError describes a malformed encryption key descriptor.
type InvalidKeyError struct {
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("rally: invalid encryption key: %s", e.Reason)
}

// SenderMismatchError rejects a companion channel message from an unexpected
// extension.
type SenderMismatchError struct {
	SenderID string
}

func (e *SenderMismatchError) Error() string {
	return fmt.Sprintf("rally: received message from unexpected sender %q", e.SenderID)
}

// OriginMismatchError rejects a web channel message. The message is the same
// whether the URL was foreign or unparsable apart from the URL itself.
type OriginMismatchError struct {
	URL         string
	Unparseable bool
}

func (e *OriginMismatchError) Error() string {
	if e.Unparseable {
		return fmt.Sprintf("rally: cannot validate sender URL %s", e.URL)
	}
	return fmt.Sprintf("rally: received message from unexpected URL %s", e.URL)
}

// UnknownMessageTypeError is returned for tags outside the set a channel
// accepts.
type UnknownMessageTypeError struct {
	Channel Channel
	Type    MessageType
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("rally: unexpected %s message type %q", e.Channel, e.Type)
}

// HandshakeError wraps a failed companion handshake.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("rally: companion handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
