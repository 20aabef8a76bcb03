package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kernel/rally/pkg/rally"
	"github.com/kernel/rally/pkg/util"
	"gopkg.in/yaml.v3"
)

// Config is the user-facing configuration of a Rally study host.
type Config struct {
	Variant          string        `yaml:"variant"`
	DevMode          bool          `yaml:"dev_mode"`
	CompanionID      string        `yaml:"companion_id"`
	WebOrigin        string        `yaml:"web_origin"`
	SignUpURL        string        `yaml:"signup_url"`
	SignUpTabPattern string        `yaml:"signup_tab_pattern"`
	Namespace        string        `yaml:"namespace"`
	KeyFile          string        `yaml:"key_file"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WebRateLimit     float64       `yaml:"web_rate_limit"`
	WebRateBurst     int           `yaml:"web_rate_burst"`
	KeyringService   string        `yaml:"keyring_service"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Variant:          rally.VariantTelemetryClient.String(),
		CompanionID:      DefaultCompanionID,
		WebOrigin:        DefaultWebOrigin,
		SignUpURL:        DefaultSignUpURL,
		SignUpTabPattern: DefaultSignUpTabPattern,
		HandshakeTimeout: DefaultHandshakeTimeout,
		KeyringService:   DefaultKeyringService,
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, ConfigDirName, ConfigFileName), nil
}

// Load reads path over the defaults and applies environment overrides.
// With an empty path the default location is used and may be missing; an
// explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := map[string]*string{
		"VARIANT":            &c.Variant,
		"COMPANION_ID":       &c.CompanionID,
		"WEB_ORIGIN":         &c.WebOrigin,
		"SIGNUP_URL":         &c.SignUpURL,
		"SIGNUP_TAB_PATTERN": &c.SignUpTabPattern,
		"NAMESPACE":          &c.Namespace,
		"KEY_FILE":           &c.KeyFile,
		"KEYRING_SERVICE":    &c.KeyringService,
		"METRICS_ADDR":       &c.MetricsAddr,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if v, ok := get("DEV_MODE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEV_MODE: %w", EnvPrefix, err)
		}
		c.DevMode = b
	}
	if v, ok := get("HANDSHAKE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sHANDSHAKE_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HandshakeTimeout = d
	}
	if v, ok := get("WEB_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sWEB_RATE_LIMIT: %w", EnvPrefix, err)
		}
		c.WebRateLimit = f
	}
	if v, ok := get("WEB_RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWEB_RATE_BURST: %w", EnvPrefix, err)
		}
		c.WebRateBurst = n
	}
	return nil
}

// ParseVariant maps a variant name to rally.Variant.
func ParseVariant(name string) (rally.Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", rally.VariantTelemetryClient.String(), "client":
		return rally.VariantTelemetryClient, nil
	case rally.VariantIdentityBroker.String(), "broker":
		return rally.VariantIdentityBroker, nil
	default:
		return 0, fmt.Errorf("unknown variant %q (want %s or %s)", name,
			rally.VariantTelemetryClient, rally.VariantIdentityBroker)
	}
}

// RallyConfig builds the library configuration. The key file is read only
// for the telemetry client, which is the only variant that sends pings.
func (c Config) RallyConfig(onChange rally.StateChangeFunc, metrics *rally.Metrics) (rally.Config, error) {
	variant, err := ParseVariant(c.Variant)
	if err != nil {
		return rally.Config{}, err
	}

	rc := rally.Config{
		Variant:          variant,
		DevMode:          c.DevMode,
		StateChange:      onChange,
		CompanionID:      c.CompanionID,
		WebOrigin:        c.WebOrigin,
		SignUpURL:        c.SignUpURL,
		SignUpTabPattern: c.SignUpTabPattern,
		Namespace:        c.Namespace,
		HandshakeTimeout: c.HandshakeTimeout,
		WebRateLimit:     c.WebRateLimit,
		WebRateBurst:     c.WebRateBurst,
		Metrics:          metrics,
	}

	if variant == rally.VariantTelemetryClient && c.KeyFile != "" {
		key, err := util.LoadKey(c.KeyFile)
		if err != nil {
			return rally.Config{}, err
		}
		rc.Key = key
	}
	return rc, nil
}
