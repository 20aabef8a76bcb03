package rally

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
)

// RallyID returns the participant identity.
//
// The telemetry client returns the identity from the handshake, which is
// empty in developer mode without a core add-on. The identity broker reads
// it from storage and mints and stores a new one the first time.
func (r *Rally) RallyID(ctx context.Context) (string, error) {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	if r.rallyID != "" || r.cfg.Variant != VariantIdentityBroker {
		return r.rallyID, nil
	}

	id, found, err := r.storedRallyID(ctx)
	if err != nil {
		return "", err
	}
	if found {
		r.rallyID = id
		return id, nil
	}

	id = r.host.NewID()
	if cas, ok := r.host.Storage.(CheckAndSetter); ok {
		set, err := cas.SetIfAbsent(ctx, StorageKeyRallyID, id)
		if err != nil {
			return "", fmt.Errorf("failed to store rally ID: %w", err)
		}
		if !set {
			// Another context stored one first.
			id, _, err = r.storedRallyID(ctx)
			if err != nil {
				return "", err
			}
		}
	} else if err := r.host.Storage.Set(ctx, StorageKeyRallyID, id); err != nil {
		return "", fmt.Errorf("failed to store rally ID: %w", err)
	}

	pterm.Debug.Println("Rally - generated a new rally ID")
	r.rallyID = id
	return id, nil
}

func (r *Rally) storedRallyID(ctx context.Context) (string, bool, error) {
	raw, found, err := r.host.Storage.Get(ctx, StorageKeyRallyID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read rally ID: %w", err)
	}
	if !found {
		return "", false, nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false, fmt.Errorf("stored rally ID is not a string: %w", err)
	}
	return id, id != "", nil
}
