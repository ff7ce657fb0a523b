// Package secret encrypts backend credentials at rest.
//
// Ciphertexts are "<hex nonce>:<hex sealed box>" produced by XChaCha20-Poly1305
// with a key derived from the configured secret through HKDF-SHA256.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "llmchat backend credentials v1"

type Box struct {
	key []byte
}

func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Box{key: key}, nil
}

// Encrypt returns "" for an empty plaintext.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values that are not valid ciphertexts under this
// key are returned unchanged, so keys stored in plain text keep working.
func (b *Box) Decrypt(value string) string {
	if value == "" {
		return ""
	}
	plain, err := b.open(value)
	if err != nil {
		return value
	}
	return plain
}

func (b *Box) open(value string) (string, error) {
	nonceHex, sealedHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", errors.New("not an encrypted value")
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", err
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", errors.New("bad nonce size")
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Mask renders a key for display: first four characters, "...", and the last
// four when the key is longer than eight characters.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	head := key
	if len(head) > 4 {
		head = head[:4]
	}
	tail := ""
	if len(key) > 8 {
		tail = key[len(key)-4:]
	}
	return head + "..." + tail
}
