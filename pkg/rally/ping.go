package rally

import (
	"context"
	"encoding/json"

	"github.com/pterm/pterm"
)

// Submit sends a telemetry ping through the core add-on, which encrypts it
// with the configured key and uploads it.
//
// Nothing is sent before enrollment, in developer mode or while the study
// is paused. Submit never fails the caller: every problem is logged and
// dropped.
func (r *Rally) Submit(ctx context.Context, payloadType string, payload any) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.ping(outcomeTransportError)
			pterm.Error.Printf("Rally.sendPing - %v\n", p)
		}
	}()

	if r.cfg.Variant != VariantTelemetryClient {
		r.metrics.ping(outcomeUnsupported)
		pterm.Warning.Printf("Rally.sendPing - %s cannot send pings\n", r.cfg.Variant)
		return
	}
	if !r.initialized.Load() {
		r.metrics.ping(outcomeNotInitialized)
		pterm.Warning.Println("Rally.sendPing - not initialized, ping dropped")
		return
	}
	if r.cfg.DevMode {
		r.metrics.ping(outcomeDevMode)
		body, _ := json.Marshal(payload)
		pterm.Info.Printf("Rally.sendPing - developer mode, %s ping not sent: %s\n", payloadType, body)
		return
	}
	if r.state.State() == Paused {
		r.metrics.ping(outcomePaused)
		pterm.Info.Println("Rally.sendPing - study is paused, ping dropped")
		return
	}
	if err := ValidateKey(r.cfg.Key); err != nil {
		r.metrics.ping(outcomeInvalidKey)
		pterm.Error.Printf("Rally.sendPing - %v\n", err)
		return
	}

	msg, err := NewMessage(TypeTelemetryPing, TelemetryPing{
		PayloadType: payloadType,
		Payload:     payload,
		Namespace:   r.cfg.Namespace,
		KeyID:       r.keyID,
		Key:         r.cfg.Key,
	})
	if err != nil {
		r.metrics.ping(outcomeTransportError)
		pterm.Error.Printf("Rally.sendPing - %v\n", err)
		return
	}

	if _, err := r.host.Transport.Send(ctx, r.cfg.CompanionID, msg); err != nil {
		r.metrics.ping(outcomeTransportError)
		pterm.Error.Printf("Rally.sendPing - failed to send %s ping: %v\n", payloadType, err)
		return
	}
	r.metrics.ping(outcomeSent)
	pterm.Debug.Printf("Rally.sendPing - sent %s ping\n", payloadType)
}
