package utils // package utils provides helper functions for secrets, passwords and access tokens

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 digests for stored secrets
    "encoding/hex"  // hex encoding of raw secrets and digests
)

// SecretBytes is the amount of entropy in every refresh and invite secret.
const SecretBytes = 32

// Secret is a freshly generated opaque credential.  Raw is handed to exactly
// one recipient (an HTTP response or an outbound event); Hash is what gets
// persisted.
type Secret struct {
    Raw  string // 64 hex characters returned to the client
    Hash string // SHA‑256 hex digest stored in tokens.token_hash
}

// GenerateSecret returns a new random secret together with its digest.
func GenerateSecret() (Secret, error) {
    raw, err := randomHex(SecretBytes)
    if err != nil {
        return Secret{}, err
    }
    return Secret{Raw: raw, Hash: HashSecret(raw)}, nil
}

// HashSecret returns the SHA‑256 hash of a raw secret as a hex string.  The
// function is total: malformed input simply hashes to a value that matches no
// stored row.
func HashSecret(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
