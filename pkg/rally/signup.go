package rally

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
)

// CompleteSignUp records that the participant signed up and stores the
// website's auth token. The record is written once; later calls leave the
// stored token untouched and still report completion. The token is stored
// before the flag, so a failed write leaves sign-up incomplete and a retry
// stores it.
func (r *Rally) CompleteSignUp(ctx context.Context, authToken json.RawMessage) (bool, error) {
	if r.cfg.Variant != VariantIdentityBroker {
		return false, ErrWebControlForbidden
	}

	r.signUpMu.Lock()
	defer r.signUpMu.Unlock()

	st := r.host.Storage
	_, found, err := st.Get(ctx, StorageKeySignUpComplete)
	if err != nil {
		return false, fmt.Errorf("failed to read sign-up state: %w", err)
	}
	if found {
		pterm.Warning.Println("Rally - sign-up is already complete")
		return true, nil
	}

	if err := st.Set(ctx, StorageKeyAuthToken, authToken); err != nil {
		return false, fmt.Errorf("failed to store auth token: %w", err)
	}
	first, err := r.markSignUpComplete(ctx)
	if err != nil {
		return false, err
	}
	if !first {
		pterm.Warning.Println("Rally - sign-up was completed concurrently")
		return true, nil
	}
	pterm.Success.Println("Rally - sign-up complete")
	return true, nil
}

// markSignUpComplete sets the sign-up flag and reports whether this call
// was the one that set it. Without CheckAndSetter support two contexts can
// both observe a missing flag; the flag write is idempotent in that case.
func (r *Rally) markSignUpComplete(ctx context.Context) (bool, error) {
	st := r.host.Storage
	if cas, ok := st.(CheckAndSetter); ok {
		set, err := cas.SetIfAbsent(ctx, StorageKeySignUpComplete, true)
		if err != nil {
			return false, fmt.Errorf("failed to record sign-up: %w", err)
		}
		return set, nil
	}
	if err := st.Set(ctx, StorageKeySignUpComplete, true); err != nil {
		return false, fmt.Errorf("failed to record sign-up: %w", err)
	}
	return true, nil
}
