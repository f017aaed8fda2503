// Package cryptoutils implements symmetric encryption for secrets that have to
// be stored at rest, such as channel bot tokens and VM root credentials.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CredentialCipher encrypts and decrypts short secrets with AES-256-GCM.
// The wire format is "iv:tag:ciphertext" with each segment hex-encoded and a
// fresh 96-bit nonce per call.
type CredentialCipher struct {
	aead cipher.AEAD
}

const gcmNonceSize = 12
const gcmTagSize = 16

var ErrMalformedCiphertext = errors.New("ciphertext is not of the form iv:tag:ciphertext")

// NewCredentialCipher creates a cipher from a hex-encoded 32-byte key.
func NewCredentialCipher(keyHex string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("credential key must be 32 bytes")
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialCipher{aead: aead}, nil
}

func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, ([]byte)(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return fmt.Sprintf(
		"%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt fails closed: any input that is not exactly three hex segments, or
// whose authentication tag does not verify, returns an error.
func (c *CredentialCipher) Decrypt(encoded string) (string, error) {
	segments := strings.Split(encoded, ":")
	if len(segments) != 3 {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(segments[0])
	if err != nil || len(iv) != gcmNonceSize {
		return "", ErrMalformedCiphertext
	}

	tag, err := hex.DecodeString(segments[1])
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrMalformedCiphertext
	}

	ciphertext, err := hex.DecodeString(segments[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate ciphertext: %w", err)
	}

	return string(plaintext), nil
}
