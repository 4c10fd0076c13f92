package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// DeviceTokenPrefix identifies mobile device tokens in Authorization headers.
const DeviceTokenPrefix = "mpd_"

const deviceTokenBytes = 32

// NewDeviceToken generates a high-entropy device token. The raw value is
// revealed to the caller exactly once at mint time; only its hash is stored.
func NewDeviceToken() (string, error) {
	b := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return DeviceTokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// IsDeviceToken reports whether s carries the device token prefix.
func IsDeviceToken(s string) bool {
	return strings.HasPrefix(s, DeviceTokenPrefix)
}

// HashDeviceToken returns a SHA-256 hash of the device token string, hex-encoded.
// Used for storing and comparing device tokens without storing the raw token.
func HashDeviceToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// DeviceTokenHashEqual performs constant-time comparison of the provided token's hash
// with the stored hash. Returns true only if they match.
func DeviceTokenHashEqual(providedToken, storedHash string) bool {
	providedHash := HashDeviceToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
