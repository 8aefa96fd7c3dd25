package ghost

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/lockblip/server/pkg/apperr"
	"golang.org/x/crypto/chacha20poly1305"
)

// The vault seals message content under a per-session symmetric key using
// XChaCha20-Poly1305. Ciphertext layout: base64(nonce || sealed).

// GenerateSessionKey produces a fresh high-entropy symmetric key. Never
// derived from user input.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key.
func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. Tampered or mismatched input
// fails with ErrDecryptionFailed.
func Decrypt(key []byte, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "decryption failed", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", apperr.ErrDecryptionFailed
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// EncryptOptional seals an optional field, passing nil through unchanged.
func EncryptOptional(key []byte, plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	sealed, err := Encrypt(key, *plaintext)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// DecryptOptional opens an optional field, passing nil through unchanged.
func DecryptOptional(key []byte, ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plaintext, err := Decrypt(key, *ciphertext)
	if err != nil {
		return nil, err
	}
	return &plaintext, nil
}
