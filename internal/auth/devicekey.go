package auth

import (
	"crypto/hmac"
	"errors"
)

// ErrBadDeviceKey indicates a missing or mismatched device API key.
var ErrBadDeviceKey = errors.New("auth: invalid device api key")

// DeviceKeyVerifier checks the shared secret carried by device-originated
// writes. Sensors embed the key in the request body; the ingest handlers call
// Verify before any side effect.
type DeviceKeyVerifier struct {
	secret []byte
}

// NewDeviceKeyVerifier constructs a verifier.
func NewDeviceKeyVerifier(secret []byte) (*DeviceKeyVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty device key secret")
	}
	return &DeviceKeyVerifier{secret: secret}, nil
}

// Verify compares the presented key in constant time.
func (v *DeviceKeyVerifier) Verify(key string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrBadDeviceKey
	}
	if key == "" {
		return ErrBadDeviceKey
	}
	if !hmac.Equal([]byte(key), v.secret) {
		return ErrBadDeviceKey
	}
	return nil
}
