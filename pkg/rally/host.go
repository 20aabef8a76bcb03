package rally

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Handler processes one inbound message. A nil *Message with a nil error
// means there is nothing to send back.
type Handler func(ctx context.Context, msg Message, sender Sender) (*Message, error)

// Transport is the host's external messaging facility.
type Transport interface {
	// Listen registers h for messages arriving on ch. The returned func
	// unregisters it.
	Listen(ch Channel, h Handler) (stop func())

	// Send delivers msg to the extension identified by target and waits for
	// its reply.
	Send(ctx context.Context, target string, msg Message) (*Message, error)
}

// Storage is the host's durable key/value store. It is shared with other
// contexts of the same extension, so callers must not assume exclusive
// access.
type Storage interface {
	// Get returns the JSON value stored under key and whether it exists.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Set stores value, encoded as JSON, under key.
	Set(ctx context.Context, key string, value any) error
}

// CheckAndSetter is implemented by storages that can write a key only when
// it does not exist yet, atomically.
type CheckAndSetter interface {
	SetIfAbsent(ctx context.Context, key string, value any) (bool, error)
}

// Tab is a browser tab as reported by the host.
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	URL      string `json:"url"`
}

// Tabs is the host's tab and window management.
type Tabs interface {
	// Query returns the tabs whose URL matches a match pattern such as
	// "*://example.com/*", in the order the host reports them.
	Query(ctx context.Context, urlPattern string) ([]Tab, error)
	// Create opens url in a new tab.
	Create(ctx context.Context, url string) error
	// Focus focuses the tab's window and makes the tab active.
	Focus(ctx context.Context, tab Tab) error
}

// Management lets the extension remove itself.
type Management interface {
	UninstallSelf(ctx context.Context, showConfirmDialog bool) error
}

// IDGenerator returns a new random unique identifier.
type IDGenerator func() string

// DefaultIDGenerator returns random (version 4) UUIDs.
func DefaultIDGenerator() string {
	return uuid.NewString()
}

// Host bundles the collaborators a Rally instance talks to. Tabs,
// Management and NewID may be nil where the variant does not need them.
type Host struct {
	Transport  Transport
	Storage    Storage
	Tabs       Tabs
	Management Management
	NewID      IDGenerator
}

// Storage keys.
const (
	StorageKeySignUpComplete = "signUpComplete"
	StorageKeyAuthToken      = "authToken"
	StorageKeyRallyID        = "rallyId"
)
