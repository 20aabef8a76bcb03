package util

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kernel/rally/pkg/rally"
)

// LoadKey reads the study's encryption key from path.
func LoadKey(path string) (rally.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return ParseKey(data)
}

// ParseKey accepts either a JWK or a PEM encoded public key. PEM keys are
// converted with PEMToJWK. The result is validated with rally.ValidateKey.
func ParseKey(data []byte) (rally.Key, error) {
	var key rally.Key
	if block, _ := pem.Decode(data); block != nil {
		k, err := PEMToJWK(data)
		if err != nil {
			return nil, err
		}
		key = k
	} else if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse as JWK or PEM: %w", err)
	}

	if err := rally.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// PEMToJWK converts a PEM public key (RSA, EC or Ed25519) to a public JWK
// for encryption. The kid is the key's RFC 7638 thumbprint.
func PEMToJWK(pemData []byte) (rally.Key, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if block.Type != "PUBLIC KEY" && block.Type != "RSA PUBLIC KEY" {
		return nil, fmt.Errorf("invalid PEM type: expected PUBLIC KEY, got %s", block.Type)
	}

	var key rally.Key
	if pub, err := jwt.ParseRSAPublicKeyFromPEM(pemData); err == nil {
		key = rsaJWK(pub)
	} else if pub, err := jwt.ParseECPublicKeyFromPEM(pemData); err == nil {
		key, err = ecJWK(pub)
		if err != nil {
			return nil, err
		}
	} else if pub, err := jwt.ParseEdPublicKeyFromPEM(pemData); err == nil {
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported Edwards curve key")
		}
		key = rally.Key{"kty": "OKP", "crv": "Ed25519", "x": b64(edPub)}
	} else {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}

	kid, err := Thumbprint(key)
	if err != nil {
		return nil, err
	}
	key["kid"] = kid
	key["use"] = "enc"
	return key, nil
}

func rsaJWK(pub *rsa.PublicKey) rally.Key {
	return rally.Key{
		"kty": "RSA",
		"alg": "RSA-OAEP-256",
		"n":   b64(pub.N.Bytes()),
		"e":   b64(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func ecJWK(pub *ecdsa.PublicKey) (rally.Key, error) {
	params := pub.Curve.Params()
	var crv string
	switch params.Name {
	case "P-256", "P-384", "P-521":
		crv = params.Name
	default:
		return nil, fmt.Errorf("unsupported curve %s", params.Name)
	}
	size := (params.BitSize + 7) / 8
	return rally.Key{
		"kty": "EC",
		"alg": "ECDH-ES",
		"crv": crv,
		"x":   b64(pub.X.FillBytes(make([]byte, size))),
		"y":   b64(pub.Y.FillBytes(make([]byte, size))),
	}, nil
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of a public JWK.
func Thumbprint(key rally.Key) (string, error) {
	kty, _ := key["kty"].(string)
	var members []string
	switch kty {
	case "RSA":
		members = []string{"e", "kty", "n"}
	case "EC":
		members = []string{"crv", "kty", "x", "y"}
	case "OKP":
		members = []string{"crv", "kty", "x"}
	default:
		return "", fmt.Errorf("unsupported key type %q", kty)
	}

	required := make(map[string]string, len(members))
	for _, m := range members {
		v, ok := key[m].(string)
		if !ok || v == "" {
			return "", fmt.Errorf("key is missing %q", m)
		}
		required[m] = v
	}
	// encoding/json writes map keys in sorted order with no whitespace.
	canonical, err := json.Marshal(required)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return b64(sum[:]), nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
