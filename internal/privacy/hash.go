// SPDX-License-Identifier: MIT

package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces stable, keyed, 16-hex-character tokens for direct
// identifiers. The same input always maps to the same token within one
// process lifetime; without the secret the mapping is not reversible.
type Hasher struct {
	secret Secret
}

// NewHasher builds a Hasher over the process secret.
func NewHasher(secret Secret) *Hasher {
	return &Hasher{secret: secret}
}

// Token returns the 16-hex-character keyed hash of value.
func (h *Hasher) Token(value string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}
