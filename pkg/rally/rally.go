// Package rally is the study side of the Rally platform. It enrolls the
// study with the core add-on (or, in the identity broker variant, with the
// Rally website), tracks whether collection is running or paused, and
// forwards telemetry pings to the core add-on for encryption and upload.
package rally

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// DefaultHandshakeTimeout bounds the core-check round trip when
// Config.HandshakeTimeout is zero.
const DefaultHandshakeTimeout = 10 * time.Second

// Variant selects how an instance enrolls and whom it takes orders from.
type Variant int

const (
	// VariantTelemetryClient requires an enrolled core add-on, never mints
	// an identity and can submit pings.
	VariantTelemetryClient Variant = iota
	// VariantIdentityBroker mints its own identity, takes control messages
	// from the Rally website and cannot submit pings.
	VariantIdentityBroker
)

func (v Variant) String() string {
	switch v {
	case VariantTelemetryClient:
		return "telemetry-client"
	case VariantIdentityBroker:
		return "identity-broker"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Config configures a Rally instance. It is copied by New and never
// changes afterwards.
type Config struct {
	Variant Variant

	// DevMode turns companion failures into warnings and keeps pings local.
	DevMode bool

	// StateChange is required. It is called with the new state after every
	// pause or resume that changed the state.
	StateChange StateChangeFunc

	// CompanionID is the extension ID of the core add-on.
	CompanionID string
	// WebOrigin is the only origin allowed on the web channel.
	WebOrigin string
	// SignUpURL is opened when the participant needs to enroll.
	SignUpURL string
	// SignUpTabPattern is a match pattern for tabs already showing the
	// sign-up site.
	SignUpTabPattern string

	// Namespace and Key are attached to every ping.
	Namespace string
	Key       Key

	HandshakeTimeout time.Duration

	// WebRateLimit and WebRateBurst throttle web channel messages per
	// sender URL. Zero disables throttling.
	WebRateLimit float64
	WebRateBurst int

	// Metrics defaults to an unregistered set of counters.
	Metrics *Metrics
}

// Rally is one study's connection to the platform.
type Rally struct {
	cfg     Config
	keyID   string
	host    Host
	state   *StateMachine
	metrics *Metrics

	companion SenderPolicy
	web       SenderPolicy
	limiter   *originLimiter

	initialized atomic.Bool

	idMu    sync.Mutex
	rallyID string

	signUpMu sync.Mutex

	stopMu sync.Mutex
	stops  []func()

	promptDone chan struct{}
}

// New validates cfg, enrolls and starts listening for external messages.
//
// For the telemetry client a failed handshake opens the sign-up page and is
// returned as an error, unless cfg.DevMode is set. For the identity broker
// the sign-up prompt runs in the background and New does not wait for it.
func New(ctx context.Context, cfg Config, host Host) (*Rally, error) {
	pterm.Debug.Println("Rally.initialize")

	if cfg.StateChange == nil {
		return nil, ErrMissingStateChangeCallback
	}
	if err := validateConfig(cfg, host); err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if host.NewID == nil {
		host.NewID = DefaultIDGenerator
	}

	r := &Rally{
		cfg:        cfg,
		keyID:      cfg.Key.KeyID(),
		host:       host,
		metrics:    cfg.Metrics,
		companion:  CompanionPolicy{ExtensionID: cfg.CompanionID},
		web:        WebOriginPolicy{Origin: cfg.WebOrigin},
		limiter:    newOriginLimiter(cfg.WebRateLimit, cfg.WebRateBurst),
		promptDone: make(chan struct{}),
	}
	onChange := func(s RunState) {
		r.metrics.transition(s)
		cfg.StateChange(s)
	}

	switch cfg.Variant {
	case VariantIdentityBroker:
		r.state = NewStateMachine(Paused, onChange)
		r.listen(ChannelWeb, r.HandleWebMessage)
		if cfg.CompanionID != "" {
			r.listen(ChannelCompanion, r.HandleCompanionMessage)
		}
		r.initialized.Store(true)

		go func() {
			defer close(r.promptDone)
			if err := r.promptSignUp(context.WithoutCancel(ctx)); err != nil {
				pterm.Error.Printf("Rally - sign-up prompt failed: %v\n", err)
			}
		}()

	case VariantTelemetryClient:
		close(r.promptDone)
		r.state = NewStateMachine(Running, onChange)
		if err := r.handshake(ctx); err != nil {
			if !cfg.DevMode {
				pterm.Error.Printf("Rally - initialization failed: %v\n", err)
				r.redirectToSignUp(ctx)
				return nil, err
			}
			pterm.Warning.Printf("Rally - ignoring handshake failure in developer mode: %v\n", err)
		}
		r.listen(ChannelCompanion, r.HandleCompanionMessage)
		r.initialized.Store(true)
	}

	return r, nil
}

func validateConfig(cfg Config, host Host) error {
	if host.Transport == nil {
		return fmt.Errorf("%w: a transport is required", ErrInvalidConfig)
	}
	switch cfg.Variant {
	case VariantTelemetryClient:
		if err := ValidateKey(cfg.Key); err != nil {
			return err
		}
		if cfg.CompanionID == "" {
			return fmt.Errorf("%w: companion ID is required", ErrInvalidConfig)
		}
		if cfg.Namespace == "" {
			return fmt.Errorf("%w: namespace is required", ErrInvalidConfig)
		}
	case VariantIdentityBroker:
		if cfg.WebOrigin == "" {
			return fmt.Errorf("%w: web origin is required", ErrInvalidConfig)
		}
		if _, err := Origin(cfg.WebOrigin); err != nil {
			return fmt.Errorf("%w: web origin %q: %v", ErrInvalidConfig, cfg.WebOrigin, err)
		}
		if host.Storage == nil {
			return fmt.Errorf("%w: storage is required", ErrInvalidConfig)
		}
		if cfg.Key != nil {
			if err := ValidateKey(cfg.Key); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown variant %d", ErrInvalidConfig, int(cfg.Variant))
	}
	if cfg.SignUpURL == "" {
		return fmt.Errorf("%w: sign-up URL is required", ErrInvalidConfig)
	}
	return nil
}

func (r *Rally) listen(ch Channel, h Handler) {
	stop := r.host.Transport.Listen(ch, h)
	r.stopMu.Lock()
	r.stops = append(r.stops, stop)
	r.stopMu.Unlock()
}

// Close unregisters the message listeners. It does not wait for a pending
// sign-up prompt.
func (r *Rally) Close() {
	r.stopMu.Lock()
	stops := r.stops
	r.stops = nil
	r.stopMu.Unlock()

	for _, stop := range stops {
		if stop != nil {
			stop()
		}
	}
}

// Variant returns the configured variant.
func (r *Rally) Variant() Variant { return r.cfg.Variant }

// State returns the current run state.
func (r *Rally) State() RunState { return r.state.State() }

// Initialized reports whether enrollment finished and pings may be sent.
func (r *Rally) Initialized() bool { return r.initialized.Load() }

func (r *Rally) pause() {
	if r.state.Pause() {
		pterm.Info.Println("Rally - study paused")
	}
}

func (r *Rally) resume() {
	if r.state.Resume() {
		pterm.Info.Println("Rally - study resumed")
	}
}
