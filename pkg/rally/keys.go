package rally

// Key is a JSON Web Key used by the companion to encrypt ping payloads.
// Only the "kid" member is interpreted here; the rest is forwarded as-is.
type Key map[string]any

// KeyID returns the "kid" member, or "" when it is absent or not a string.
func (k Key) KeyID() string {
	kid, _ := k["kid"].(string)
	return kid
}

// ValidateKey checks that key carries a non-empty string "kid".
func ValidateKey(key Key) error {
	if key == nil {
		return &InvalidKeyError{Reason: "key is missing"}
	}
	raw, ok := key["kid"]
	if !ok {
		return &InvalidKeyError{Reason: `missing "kid"`}
	}
	kid, ok := raw.(string)
	if !ok {
		return &InvalidKeyError{Reason: `"kid" must be a string`}
	}
	if kid == "" {
		return &InvalidKeyError{Reason: `"kid" must not be empty`}
	}
	return nil
}
