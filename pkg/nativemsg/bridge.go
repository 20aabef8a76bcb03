package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kernel/rally/pkg/rally"
	"github.com/pterm/pterm"
)

// ErrClosed is returned for requests made after the bridge stopped.
var ErrClosed = errors.New("nativemsg: bridge closed")

// Host API methods relayed to the browser with KindCall frames.
const (
	MethodTabsQuery       = "tabs.query"
	MethodTabsCreate      = "tabs.create"
	MethodTabsFocus       = "tabs.focus"
	MethodUninstallSelf   = "management.uninstallSelf"
	methodUninstallParams = "showConfirmDialog"
)

// Bridge is a rally.Transport, rally.Tabs and rally.Management backed by a
// native messaging connection.
type Bridge struct {
	r io.Reader
	w io.Writer

	wmu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan Frame
	handlers map[rally.Channel]rally.Handler
	closed   bool

	inflight sync.WaitGroup
}

// NewBridge returns a bridge reading frames from r and writing to w. Call
// Run to start processing.
func NewBridge(r io.Reader, w io.Writer) *Bridge {
	return &Bridge{
		r:        r,
		w:        w,
		pending:  make(map[uint64]chan Frame),
		handlers: make(map[rally.Channel]rally.Handler),
	}
}

// Run reads frames until r is exhausted or fails. Inbound messages are
// handled concurrently with ctx. When Run returns, pending requests fail
// with ErrClosed; Run waits for running handlers before returning.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.inflight.Wait()
	defer b.shutdown()

	for {
		var f Frame
		if err := ReadFrame(b.r, &f); err != nil {
			if errors.Is(err, io.EOF) || b.isClosed() {
				return nil
			}
			return err
		}

		switch f.Kind {
		case KindReply:
			b.deliver(f)
		case KindMessage:
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.handle(ctx, f)
			}()
		default:
			pterm.Warning.Printf("nativemsg: ignoring frame %d of kind %q\n", f.ID, f.Kind)
		}
	}
}

// Close stops the bridge. Pending and later requests fail with ErrClosed.
// When the reader is an io.Closer it is closed too, which ends Run.
func (b *Bridge) Close() error {
	b.shutdown()
	if c, ok := b.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

func (b *Bridge) deliver(f Frame) {
	b.mu.Lock()
	ch, ok := b.pending[f.ID]
	delete(b.pending, f.ID)
	b.mu.Unlock()

	if !ok {
		pterm.Debug.Printf("nativemsg: dropping reply to unknown request %d\n", f.ID)
		return
	}
	ch <- f
}

func (b *Bridge) handle(ctx context.Context, f Frame) {
	reply := Frame{ID: f.ID, Kind: KindReply}

	b.mu.Lock()
	h := b.handlers[f.Channel]
	b.mu.Unlock()

	switch {
	case h == nil:
		reply.Error = fmt.Sprintf("no listener for %s messages", f.Channel)
	case f.Message == nil:
		reply.Error = "frame carries no message"
	default:
		var sender rally.Sender
		if f.Sender != nil {
			sender = *f.Sender
		}
		resp, err := h(ctx, *f.Message, sender)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Message = resp
		}
	}

	if err := b.write(reply); err != nil {
		pterm.Error.Printf("nativemsg: failed to reply to %d: %v\n", f.ID, err)
	}
}

func (b *Bridge) write(f Frame) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	return WriteFrame(b.w, f)
}

// request writes f with a fresh ID and waits for the matching reply.
func (b *Bridge) request(ctx context.Context, f Frame) (Frame, error) {
	ch := make(chan Frame, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Frame{}, ErrClosed
	}
	b.nextID++
	f.ID = b.nextID
	b.pending[f.ID] = ch
	b.mu.Unlock()

	if err := b.write(f); err != nil {
		b.forget(f.ID)
		return Frame{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Frame{}, ErrClosed
		}
		if reply.Error != "" {
			return reply, errors.New(reply.Error)
		}
		return reply, nil
	case <-ctx.Done():
		b.forget(f.ID)
		return Frame{}, ctx.Err()
	}
}

func (b *Bridge) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("nativemsg: failed to encode %s params: %w", method, err)
	}
	reply, err := b.request(ctx, Frame{Kind: KindCall, Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if result == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%s: invalid result: %w", method, err)
	}
	return nil
}

// Listen implements rally.Transport.
func (b *Bridge) Listen(ch rally.Channel, h rally.Handler) func() {
	b.mu.Lock()
	b.handlers[ch] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, ch)
		b.mu.Unlock()
	}
}

// Send implements rally.Transport.
func (b *Bridge) Send(ctx context.Context, target string, msg rally.Message) (*rally.Message, error) {
	reply, err := b.request(ctx, Frame{Kind: KindSend, Target: target, Message: &msg})
	if err != nil {
		return nil, err
	}
	return reply.Message, nil
}

// Query implements rally.Tabs.
func (b *Bridge) Query(ctx context.Context, urlPattern string) ([]rally.Tab, error) {
	var tabs []rally.Tab
	if err := b.call(ctx, MethodTabsQuery, map[string]string{"url": urlPattern}, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// Create implements rally.Tabs.
func (b *Bridge) Create(ctx context.Context, url string) error {
	return b.call(ctx, MethodTabsCreate, map[string]string{"url": url}, nil)
}

// Focus implements rally.Tabs.
func (b *Bridge) Focus(ctx context.Context, tab rally.Tab) error {
	return b.call(ctx, MethodTabsFocus, tab, nil)
}

// UninstallSelf implements rally.Management.
func (b *Bridge) UninstallSelf(ctx context.Context, showConfirmDialog bool) error {
	return b.call(ctx, MethodUninstallSelf, map[string]bool{methodUninstallParams: showConfirmDialog}, nil)
}
