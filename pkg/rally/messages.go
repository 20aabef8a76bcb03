package rally

import (
	"encoding/json"
	"fmt"
)

// Channel identifies which external boundary a message crossed.
type Channel string

const (
	// ChannelCompanion carries traffic to and from the core add-on.
	ChannelCompanion Channel = "companion"
	// ChannelWeb carries traffic from the Rally website.
	ChannelWeb Channel = "web"
)

// MessageType is the "type" tag of a Message.
type MessageType string

const (
	TypeCoreCheck         MessageType = "core-check"
	TypeCoreCheckResponse MessageType = "core-check-response"
	TypeTelemetryPing     MessageType = "telemetry-ping"
	TypePause             MessageType = "pause"
	TypeResume            MessageType = "resume"
	TypeUninstall         MessageType = "uninstall"
	TypeWebCheck          MessageType = "web-check"
	TypeWebCheckResponse  MessageType = "web-check-response"
	TypeCompleteSignUp    MessageType = "complete-signup"
)

// Message is the envelope exchanged on both channels.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a Message with data encoded as JSON. A nil data yields
// an empty object.
func NewMessage(t MessageType, data any) (Message, error) {
	if data == nil {
		return Message{Type: t, Data: json.RawMessage(`{}`)}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Message{Type: t, Data: raw}, nil
}

// DecodeData unmarshals the message payload into v.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Type, err)
	}
	return nil
}

// Sender describes who delivered an inbound message, as reported by the
// host transport.
type Sender struct {
	// ID is the sending extension's identifier (companion channel).
	ID string `json:"id,omitempty"`
	// URL is the page URL that sent the message (web channel).
	URL string `json:"url,omitempty"`
}

// CoreCheckResponse is the companion's answer to a core-check.
type CoreCheckResponse struct {
	Enrolled bool    `json:"enrolled"`
	RallyID  *string `json:"rallyId"`
}

// TelemetryPing is the payload of a telemetry-ping envelope.
type TelemetryPing struct {
	PayloadType string `json:"payloadType"`
	Payload     any    `json:"payload"`
	Namespace   string `json:"namespace"`
	KeyID       string `json:"keyId"`
	Key         Key    `json:"key"`
}

// CompleteSignUpRequest is sent by the website once sign-up finished.
type CompleteSignUpRequest struct {
	AuthToken json.RawMessage `json:"authToken"`
}

// CompleteSignUpResponse is returned to the website.
type CompleteSignUpResponse struct {
	SignUpComplete bool `json:"signUpComplete"`
}

// WebCheckResponse is intentionally empty.
type WebCheckResponse struct{}
