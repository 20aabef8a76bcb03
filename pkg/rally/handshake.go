package rally

import (
	"context"
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

// handshake asks the core add-on whether the participant is enrolled and
// caches the identity it returns.
func (r *Rally) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HandshakeTimeout)
	defer cancel()

	req, err := NewMessage(TypeCoreCheck, nil)
	if err != nil {
		return &HandshakeError{Err: err}
	}

	pterm.Debug.Printf("Rally - sending %s to %s\n", TypeCoreCheck, r.cfg.CompanionID)
	reply, err := r.host.Transport.Send(ctx, r.cfg.CompanionID, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &HandshakeError{Err: fmt.Errorf("no response within %s: %w", r.cfg.HandshakeTimeout, err)}
		}
		return &HandshakeError{Err: fmt.Errorf("failed to reach the core add-on: %w", err)}
	}
	if reply == nil {
		return &HandshakeError{Err: errors.New("empty response")}
	}
	if reply.Type != TypeCoreCheckResponse {
		return &HandshakeError{Err: fmt.Errorf("unexpected response type %q", reply.Type)}
	}

	var resp CoreCheckResponse
	if err := reply.DecodeData(&resp); err != nil {
		return &HandshakeError{Err: err}
	}
	if resp.RallyID == nil || *resp.RallyID == "" {
		return ErrNotEnrolled
	}

	r.idMu.Lock()
	r.rallyID = *resp.RallyID
	r.idMu.Unlock()

	pterm.Debug.Println("Rally - core add-on handshake succeeded")
	return nil
}

// redirectToSignUp opens the sign-up page after a failed enrollment.
func (r *Rally) redirectToSignUp(ctx context.Context) {
	if r.host.Tabs == nil {
		pterm.Warning.Printf("Rally - cannot open %s: host has no tab support\n", r.cfg.SignUpURL)
		return
	}
	if err := r.host.Tabs.Create(context.WithoutCancel(ctx), r.cfg.SignUpURL); err != nil {
		pterm.Error.Printf("Rally - failed to open sign-up page: %v\n", err)
	}
}

// promptSignUp brings the sign-up site to the front unless the participant
// already completed sign-up.
func (r *Rally) promptSignUp(ctx context.Context) error {
	_, found, err := r.host.Storage.Get(ctx, StorageKeySignUpComplete)
	if err != nil {
		return fmt.Errorf("failed to read sign-up state: %w", err)
	}
	if found {
		pterm.Debug.Println("Rally - already signed-up")
		return nil
	}

	if r.host.Tabs == nil {
		return errors.New("host has no tab support")
	}

	tabs, err := r.host.Tabs.Query(ctx, r.cfg.SignUpTabPattern)
	if err != nil {
		return fmt.Errorf("failed to query tabs: %w", err)
	}
	if len(tabs) > 0 {
		tab := lo.LastOrEmpty(tabs)
		pterm.Debug.Printf("Rally - focusing sign-up tab %d\n", tab.ID)
		if err := r.host.Tabs.Focus(ctx, tab); err != nil {
			return fmt.Errorf("failed to focus sign-up tab: %w", err)
		}
		return nil
	}

	if err := r.host.Tabs.Create(ctx, r.cfg.SignUpURL); err != nil {
		return fmt.Errorf("failed to open sign-up page: %w", err)
	}
	return nil
}

// WaitSignUpPrompt blocks until the background sign-up prompt started by
// New has finished, or ctx is done.
func (r *Rally) WaitSignUpPrompt(ctx context.Context) error {
	select {
	case <-r.promptDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
