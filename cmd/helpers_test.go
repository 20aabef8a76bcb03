package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/kernel/rally/pkg/host"
	"github.com/kernel/rally/pkg/nativemsg"
	"github.com/kernel/rally/pkg/rally"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes pterm makes
// from bridge goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var outBuf *syncBuffer

// setupStdoutCapture sends pterm output to outBuf for the test.
func setupStdoutCapture(t *testing.T) {
	t.Helper()
	outBuf = &syncBuffer{}
	pterm.SetDefaultOutput(outBuf)
	pterm.DisableStyling()
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
	})
}

// captureStdout returns what fn printed with fmt.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String(), runErr
}

// FakeTabs records the pages the CLI opens.
type FakeTabs struct {
	CreateFunc func(ctx context.Context, url string) error
	Created    []string
}

func (f *FakeTabs) Query(ctx context.Context, urlPattern string) ([]rally.Tab, error) {
	return nil, nil
}

func (f *FakeTabs) Create(ctx context.Context, url string) error {
	f.Created = append(f.Created, url)
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, url)
	}
	return nil
}

func (f *FakeTabs) Focus(ctx context.Context, tab rally.Tab) error {
	return f.Create(ctx, tab.URL)
}

// FakeStudyStore wraps a memory store and lets tests fail single calls.
type FakeStudyStore struct {
	*host.MemoryStorage
	GetFunc    func(ctx context.Context, key string) error
	DeleteFunc func(ctx context.Context, key string) error
}

func NewFakeStudyStore() *FakeStudyStore {
	return &FakeStudyStore{MemoryStorage: host.NewMemoryStorage()}
}

func (f *FakeStudyStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if f.GetFunc != nil {
		if err := f.GetFunc(ctx, key); err != nil {
			return nil, false, err
		}
	}
	return f.MemoryStorage.Get(ctx, key)
}

func (f *FakeStudyStore) Delete(ctx context.Context, key string) error {
	if f.DeleteFunc != nil {
		if err := f.DeleteFunc(ctx, key); err != nil {
			return err
		}
	}
	return f.MemoryStorage.Delete(ctx, key)
}

// fakeBrowser plays the extension end of a native messaging connection.
type fakeBrowser struct {
	in  io.Reader
	out *io.PipeWriter
}

func (f *fakeBrowser) recv(t *testing.T) nativemsg.Frame {
	t.Helper()
	var fr nativemsg.Frame
	require.NoError(t, nativemsg.ReadFrame(f.in, &fr))
	return fr
}

func (f *fakeBrowser) send(t *testing.T, fr nativemsg.Frame) {
	t.Helper()
	require.NoError(t, nativemsg.WriteFrame(f.out, fr))
}

func (f *fakeBrowser) reply(t *testing.T, req nativemsg.Frame, msg *rally.Message, result []byte) {
	t.Helper()
	f.send(t, nativemsg.Frame{ID: req.ID, Kind: nativemsg.KindReply, Message: msg, Result: result})
}

// newPipes returns a RunCmd wired to a fake browser.
func newPipes(t *testing.T, store StudyStore) (RunCmd, *fakeBrowser) {
	t.Helper()
	toHost, fromBrowser := io.Pipe()
	toBrowser, fromHost := io.Pipe()
	t.Cleanup(func() {
		fromBrowser.Close()
		toBrowser.Close()
	})
	return RunCmd{store: store, in: toHost, out: fromHost}, &fakeBrowser{in: toBrowser, out: fromBrowser}
}

func newMessage(t *testing.T, typ rally.MessageType, data any) *rally.Message {
	t.Helper()
	msg, err := rally.NewMessage(typ, data)
	require.NoError(t, err)
	return &msg
}
