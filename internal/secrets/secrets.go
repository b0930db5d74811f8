// Package secrets is the encrypt/decrypt boundary around source credential
// blobs. Credentials are sealed under an operator held master key before they
// reach the database; the storage layer is never trusted to encrypt at rest.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrBadKey means the master key is missing or not 32 bytes after decoding
var ErrBadKey = errors.New("secrets master key must be 32 bytes, base64 encoded")

// ErrDecrypt means the blob could not be opened with the configured key
var ErrDecrypt = errors.New("unable to decrypt secret blob")

const nonceSize = 24

// Cipher seals and opens credential maps under the master key
type Cipher struct {
	key [32]byte
}

// NewCipher decodes the base64 master key
func NewCipher(encodedKey string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrBadKey
	}
	c := &Cipher{}
	copy(c.key[:], raw)
	return c, nil
}

// SealMap encrypts a credential map into an opaque base64 string
func (c *Cipher) SealMap(values map[string]string) (string, error) {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("Error marshaling secret values: %v", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenMap decrypts a blob previously produced by SealMap
func (c *Cipher) OpenMap(encoded string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecrypt
	}
	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, ErrDecrypt
	}
	return values, nil
}
