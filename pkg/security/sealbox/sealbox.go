// Package sealbox seals deployment endpoint keys at rest with NaCl
// secretbox (XSalsa20-Poly1305).
//
// Sealed values are base64 strings holding a random 24-byte nonce followed
// by the ciphertext, so they can be stored in ordinary text columns.
package sealbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the secretbox key length in bytes.
	KeySize = 32

	nonceSize = 24
)

var (
	// ErrInvalidKey is returned for keys that are not 32 base64-encoded bytes.
	ErrInvalidKey = errors.New("sealbox: key must be 32 bytes, base64 encoded")

	// ErrOpen is returned when a sealed value is malformed or fails
	// authentication, which includes sealing under a different key.
	ErrOpen = errors.New("sealbox: cannot open sealed value")
)

// Box seals and opens values under a single key. It is safe for concurrent
// use.
type Box struct {
	key [KeySize]byte
}

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("sealbox: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// New creates a box from a base64-encoded key.
func New(encodedKey string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext under a random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("sealbox: generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(plain), nil
}
