package cmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		wantOut []string
	}{
		{
			name:    "public JWK",
			content: `{"kid":"study-key","kty":"RSA","alg":"RSA-OAEP-256","n":"abc","e":"AQAB"}`,
			wantOut: []string{"study-key", "RSA-OAEP-256", "Key is valid"},
		},
		{
			name:    "private JWK",
			content: `{"kid":"study-key","kty":"OKP","crv":"Ed25519","x":"abc","d":"secret"}`,
			wantOut: []string{"private material", "Key is valid"},
		},
		{
			name:    "missing kid",
			content: `{"kty":"RSA"}`,
			wantErr: `missing "kid"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupStdoutCapture(t)
			path := filepath.Join(t.TempDir(), "key.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			err := KeyCmd{}.Validate(KeyInput{Path: path})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.wantOut {
				assert.Contains(t, outBuf.String(), want)
			}
		})
	}
}

func TestKeyValidate_UnsupportedOutput(t *testing.T) {
	assert.ErrorContains(t, KeyCmd{}.Validate(KeyInput{Path: "key.json", Output: "yaml"}), "unsupported --output")
}

func TestKeyConvert(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	out, err := captureStdout(t, func() error { return KeyCmd{}.Convert(KeyInput{Path: path}) })
	require.NoError(t, err)

	var jwk map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &jwk))
	assert.Equal(t, "EC", jwk["kty"])
	assert.Equal(t, "P-256", jwk["crv"])
	assert.NotEmpty(t, jwk["kid"])
}
