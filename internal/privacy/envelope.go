// SPDX-License-Identifier: MIT

package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

// AccessLevel classifies the sensitivity of a stored payload.
type AccessLevel string

const (
	AccessPublic       AccessLevel = "public"
	AccessEducational  AccessLevel = "educational"
	AccessRestricted   AccessLevel = "restricted"
	AccessConfidential AccessLevel = "confidential"
)

// Metadata rides with every encrypted payload and survives the
// encrypt/decrypt round-trip unchanged. It is authenticated but not
// encrypted so retention sweeps can read it without the key.
type Metadata struct {
	DataType       string      `json:"data_type"`
	AccessLevel    AccessLevel `json:"access_level"`
	RetentionUntil time.Time   `json:"retention_until"`
}

// Envelope is the at-rest form of a learner payload.
type Envelope struct {
	Meta       Metadata `json:"meta"`
	Nonce      []byte   `json:"nonce"`
	Ciphertext []byte   `json:"ciphertext"`
}

// Cipher performs AES-256-GCM authenticated encryption with the
// envelope metadata as additional authenticated data.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher over the process secret.
func NewCipher(secret Secret) (*Cipher, error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("privacy: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("privacy: gcm init: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into an envelope carrying meta.
func (c *Cipher) Encrypt(plaintext []byte, meta Metadata) (Envelope, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("privacy: nonce: %w", err)
	}
	aad, err := json.Marshal(meta)
	if err != nil {
		return Envelope{}, fmt.Errorf("privacy: meta marshal: %w", err)
	}
	return Envelope{
		Meta:       meta,
		Nonce:      nonce,
		Ciphertext: c.aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Decrypt opens an envelope, verifying both payload and metadata.
// Tampered metadata fails authentication.
func (c *Cipher) Decrypt(env Envelope) ([]byte, error) {
	aad, err := json.Marshal(env.Meta)
	if err != nil {
		return nil, fmt.Errorf("privacy: meta marshal: %w", err)
	}
	plaintext, err := c.aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("privacy: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptJSON marshals v and seals it.
func (c *Cipher) EncryptJSON(v any, meta Metadata) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("privacy: payload marshal: %w", err)
	}
	return c.Encrypt(data, meta)
}

// DecryptJSON opens an envelope into out.
func (c *Cipher) DecryptJSON(env Envelope, out any) error {
	data, err := c.Decrypt(env)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
