package registry

import (
	"crypto/md5" //nolint:gosec // Opaque shared token, not adversarial security; see DeriveKey.
	"encoding/hex"

	"github.com/google/uuid"
)

// keySalt is the fixed salt mixed into every device key. Changing it
// invalidates the keys compiled into deployed device firmware.
const keySalt = "@super_secure_salt!"

// IDFunc produces unique identifiers for new devices and values.
// It is injectable so tests can use deterministic ids.
type IDFunc func() string

// GenerateID is the default IDFunc: a random UUID. Random ids replace the
// coarse clock reading the first firmware generation used, which could
// collide under rapid successive creations.
func GenerateID() string {
	return uuid.New().String()
}

// DeriveKey computes a device's authentication key from its id:
// hex(md5(id + salt)). The key is an opaque shared token handed to the
// device once at registration. MD5 over a guessable input is deliberately
// weak; the threat model excludes adversaries who can enumerate ids, and
// deployed firmware depends on this exact derivation.
func DeriveKey(id string) string {
	sum := md5.Sum([]byte(id + keySalt)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
