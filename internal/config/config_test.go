package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kernel/rally/pkg/rally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultCompanionID, cfg.CompanionID)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.HandshakeTimeout)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
variant: identity-broker
dev_mode: true
web_origin: https://rally.example.org
namespace: study-1
handshake_timeout: 3s
web_rate_limit: 2.5
web_rate_burst: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "identity-broker", cfg.Variant)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "https://rally.example.org", cfg.WebOrigin)
	assert.Equal(t, "study-1", cfg.Namespace)
	assert.Equal(t, 3*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 2.5, cfg.WebRateLimit)
	assert.Equal(t, 4, cfg.WebRateBurst)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultSignUpURL, cfg.SignUpURL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeFile(t, "bad.yaml", "variant: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "namespace: from-file\n")
	t.Setenv("RALLY_NAMESPACE", "from-env")
	t.Setenv("RALLY_DEV_MODE", "true")
	t.Setenv("RALLY_HANDSHAKE_TIMEOUT", "250ms")
	t.Setenv("RALLY_WEB_RATE_BURST", "9")
	t.Setenv("RALLY_COMPANION_ID", "  ")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Namespace)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 250*time.Millisecond, cfg.HandshakeTimeout)
	assert.Equal(t, 9, cfg.WebRateBurst)
	assert.Equal(t, DefaultCompanionID, cfg.CompanionID, "blank values are ignored")
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "dev mode", env: map[string]string{"RALLY_DEV_MODE": "sometimes"}},
		{name: "timeout", env: map[string]string{"RALLY_HANDSHAKE_TIMEOUT": "soon"}},
		{name: "rate", env: map[string]string{"RALLY_WEB_RATE_LIMIT": "fast"}},
		{name: "burst", env: map[string]string{"RALLY_WEB_RATE_BURST": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			assert.ErrorContains(t, err, "invalid RALLY_")
		})
	}
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    rally.Variant
		wantErr bool
	}{
		{in: "", want: rally.VariantTelemetryClient},
		{in: "telemetry-client", want: rally.VariantTelemetryClient},
		{in: "client", want: rally.VariantTelemetryClient},
		{in: "Identity-Broker", want: rally.VariantIdentityBroker},
		{in: "broker", want: rally.VariantIdentityBroker},
		{in: "relay", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariant(tt.in)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown variant")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRallyConfig(t *testing.T) {
	keyPath := writeFile(t, "key.json", `{"kid":"study-key","kty":"RSA"}`)
	onChange := func(rally.RunState) {}

	cfg := Default()
	cfg.Namespace = "study-1"
	cfg.KeyFile = keyPath

	rc, err := cfg.RallyConfig(onChange, nil)
	require.NoError(t, err)
	assert.Equal(t, rally.VariantTelemetryClient, rc.Variant)
	assert.Equal(t, "study-key", rc.Key.KeyID())
	assert.Equal(t, "study-1", rc.Namespace)
	assert.NotNil(t, rc.StateChange)

	cfg.Variant = "broker"
	cfg.KeyFile = filepath.Join(t.TempDir(), "missing.json")
	rc, err = cfg.RallyConfig(onChange, nil)
	require.NoError(t, err, "brokers never read the key")
	assert.Nil(t, rc.Key)

	cfg.Variant = "telemetry-client"
	_, err = cfg.RallyConfig(onChange, nil)
	assert.ErrorContains(t, err, "failed to read key file")
}
