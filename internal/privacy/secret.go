// SPDX-License-Identifier: MIT

// Package privacy implements the credential boundary of the core:
// process-lifetime secrets, keyed identifier hashing, and authenticated
// encryption of learner payloads at rest.
package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

const secretLen = 32

// Secret is the process-lifetime key material for hashing and encryption.
type Secret []byte

// LoadOrCreateSecret reads the hex-encoded secret from path, generating
// and persisting a fresh one when the file does not exist. The write is
// atomic so a crash never leaves a truncated keystore behind.
func LoadOrCreateSecret(path string) (Secret, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err == nil {
		raw, decErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil || len(raw) != secretLen {
			return nil, fmt.Errorf("privacy: keystore %s is corrupt", path)
		}
		return Secret(raw), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("privacy: read keystore: %w", err)
	}

	raw := make([]byte, secretLen)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("privacy: generate secret: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return nil, fmt.Errorf("privacy: create pending keystore: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write([]byte(hex.EncodeToString(raw) + "\n")); err != nil {
		return nil, fmt.Errorf("privacy: write keystore: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("privacy: persist keystore: %w", err)
	}
	return Secret(raw), nil
}

// EphemeralSecret returns a random secret that is never persisted.
// Used when anonymisation runs without a configured keystore.
func EphemeralSecret() Secret {
	raw := make([]byte, secretLen)
	// crypto/rand.Read cannot fail on supported platforms.
	_, _ = rand.Read(raw)
	return Secret(raw)
}
