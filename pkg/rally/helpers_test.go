package rally

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"
)

const (
	testCompanionID = "rally-core@mozilla.org"
	testOrigin      = "https://rally-web-spike.web.app"
	testSignUpURL   = "https://rally-web-spike.web.app/"
	testTabPattern  = "*://rally-web-spike.web.app/*"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	pterm.SetDefaultOutput(&buf)
	pterm.DisableStyling()
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
	})
	return &buf
}

type sentMessage struct {
	Target  string
	Message Message
}

// FakeTransport records sent messages and registered listeners.
type FakeTransport struct {
	SendFunc func(ctx context.Context, target string, msg Message) (*Message, error)

	mu       sync.Mutex
	sent     []sentMessage
	handlers map[Channel]Handler
	stopped  map[Channel]bool
}

func (f *FakeTransport) Listen(ch Channel, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[Channel]Handler)
		f.stopped = make(map[Channel]bool)
	}
	f.handlers[ch] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, ch)
		f.stopped[ch] = true
	}
}

func (f *FakeTransport) Send(ctx context.Context, target string, msg Message) (*Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{Target: target, Message: msg})
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(ctx, target, msg)
	}
	return nil, nil
}

func (f *FakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *FakeTransport) SentOfType(t MessageType) []sentMessage {
	var out []sentMessage
	for _, s := range f.Sent() {
		if s.Message.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (f *FakeTransport) Handler(ch Channel) Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[ch]
}

// enrolledCompanion answers core-check with the given identity.
func enrolledCompanion(rallyID string) func(context.Context, string, Message) (*Message, error) {
	return func(ctx context.Context, target string, msg Message) (*Message, error) {
		if msg.Type != TypeCoreCheck {
			return nil, nil
		}
		reply := Message{
			Type: TypeCoreCheckResponse,
			Data: json.RawMessage(`{"enrolled":true,"rallyId":"` + rallyID + `"}`),
		}
		return &reply, nil
	}
}

// FakeStorage is a map-backed Storage without check-and-set.
type FakeStorage struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	sets   map[string]int

	GetErr error
	// SetErrs fails Set for the listed keys.
	SetErrs map[string]error
}

func newFakeStorage() *FakeStorage {
	return &FakeStorage{values: make(map[string]json.RawMessage), sets: make(map[string]int)}
}

func (f *FakeStorage) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if f.GetErr != nil {
		return nil, false, f.GetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FakeStorage) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SetErrs[key]; err != nil {
		return err
	}
	f.values[key] = raw
	f.sets[key]++
	return nil
}

func (f *FakeStorage) SetCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[key]
}

func (f *FakeStorage) Raw(key string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// FakeCASStorage adds SetIfAbsent to FakeStorage.
type FakeCASStorage struct {
	*FakeStorage
}

func (f FakeCASStorage) SetIfAbsent(ctx context.Context, key string, value any) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = raw
	f.sets[key]++
	return true, nil
}

// FakeTabs records tab operations.
type FakeTabs struct {
	QueryFunc func(ctx context.Context, pattern string) ([]Tab, error)

	mu      sync.Mutex
	created []string
	focused []Tab
	queries []string
}

func (f *FakeTabs) Query(ctx context.Context, pattern string) ([]Tab, error) {
	f.mu.Lock()
	f.queries = append(f.queries, pattern)
	f.mu.Unlock()
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, pattern)
	}
	return nil, nil
}

func (f *FakeTabs) Create(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, url)
	return nil
}

func (f *FakeTabs) Focus(ctx context.Context, tab Tab) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = append(f.focused, tab)
	return nil
}

func (f *FakeTabs) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *FakeTabs) Focused() []Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tab(nil), f.focused...)
}

// FakeManagement counts uninstall requests.
type FakeManagement struct {
	UninstallFunc func(ctx context.Context, showConfirmDialog bool) error
	calls         int
}

func (f *FakeManagement) UninstallSelf(ctx context.Context, showConfirmDialog bool) error {
	f.calls++
	if f.UninstallFunc != nil {
		return f.UninstallFunc(ctx, showConfirmDialog)
	}
	return nil
}

// stateRecorder collects observer notifications.
type stateRecorder struct {
	mu     sync.Mutex
	states []RunState
}

func (s *stateRecorder) record(st RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *stateRecorder) Calls() []RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunState(nil), s.states...)
}

func testKey() Key {
	return Key{"kid": "rally-study-key", "kty": "EC", "crv": "P-256", "x": "abc", "y": "def"}
}

func clientConfig(rec *stateRecorder) Config {
	return Config{
		Variant:          VariantTelemetryClient,
		StateChange:      rec.record,
		CompanionID:      testCompanionID,
		WebOrigin:        testOrigin,
		SignUpURL:        testSignUpURL,
		SignUpTabPattern: testTabPattern,
		Namespace:        "test-study",
		Key:              testKey(),
	}
}

func brokerConfig(rec *stateRecorder) Config {
	return Config{
		Variant:          VariantIdentityBroker,
		StateChange:      rec.record,
		CompanionID:      testCompanionID,
		WebOrigin:        testOrigin,
		SignUpURL:        testSignUpURL,
		SignUpTabPattern: testTabPattern,
	}
}

// newTestClient builds an enrolled telemetry client.
func newTestClient(t *testing.T) (*Rally, *FakeTransport, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	transport := &FakeTransport{SendFunc: enrolledCompanion("abc")}
	r, err := New(context.Background(), clientConfig(rec), Host{
		Transport: transport,
		Tabs:      &FakeTabs{},
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, transport, rec
}

// newTestBroker builds an identity broker and waits for its sign-up prompt.
func newTestBroker(t *testing.T, storage Storage, tabs *FakeTabs) (*Rally, *FakeTransport, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	transport := &FakeTransport{}
	r, err := New(context.Background(), brokerConfig(rec), Host{
		Transport:  transport,
		Storage:    storage,
		Tabs:       tabs,
		Management: &FakeManagement{},
	})
	require.NoError(t, err)
	require.NoError(t, r.WaitSignUpPrompt(context.Background()))
	t.Cleanup(r.Close)
	return r, transport, rec
}
