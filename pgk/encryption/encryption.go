// Package encryption seals job payloads with AES-256-GCM under an active secret and
// opens them with the active secret or any retired one.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/RezaEskandarii/quirrel/custom_errors"
)

// SecretSize is the required length of every secret (32 bytes for AES-256).
const SecretSize = 32

var encoding = base64.RawURLEncoding

// FallbackFunc observes a decryption failure. Its return values replace the result of
// Decrypt, so a shared dispatcher can keep going on foreign payloads.
type FallbackFunc func(ciphertext string, err error) (string, error)

type Option func(*Encryptor)

// WithFallback installs fn for failed decryptions. Without it the failure propagates.
func WithFallback(fn FallbackFunc) Option {
	return func(e *Encryptor) {
		e.fallback = fn
	}
}

type Encryptor struct {
	mu       sync.RWMutex
	keys     []cipher.AEAD // active first, then retired in order
	fallback FallbackFunc
}

// New builds an Encryptor. Secrets that are not exactly SecretSize characters are a
// configuration error.
func New(active string, retired []string, opts ...Option) (*Encryptor, error) {
	e := &Encryptor{}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Rotate(active, retired); err != nil {
		return nil, err
	}
	return e, nil
}

// Rotate replaces the active and retired secrets. Ciphertext sealed under any secret in
// the new set stays readable.
func (e *Encryptor) Rotate(active string, retired []string) error {
	keys := make([]cipher.AEAD, 0, len(retired)+1)
	for _, secret := range append([]string{active}, retired...) {
		aead, err := newAEAD(secret)
		if err != nil {
			return err
		}
		keys = append(keys, aead)
	}

	e.mu.Lock()
	e.keys = keys
	e.mu.Unlock()
	return nil
}

// Encrypt seals plaintext with the active secret under a fresh random nonce.
// A nil Encryptor returns plaintext unchanged.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if e == nil {
		return plaintext, nil
	}
	e.mu.RLock()
	aead := e.keys[0]
	e.mu.RUnlock()

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext with the active secret, then each retired secret in order.
// A nil Encryptor returns ciphertext unchanged.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if e == nil {
		return ciphertext, nil
	}
	plaintext, err := e.open(ciphertext)
	if err == nil {
		return plaintext, nil
	}
	if e.fallback != nil {
		return e.fallback(ciphertext, err)
	}
	return "", err
}

func (e *Encryptor) open(ciphertext string) (string, error) {
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", custom_errors.ErrDecryptionFailed, err)
	}

	e.mu.RLock()
	keys := e.keys
	e.mu.RUnlock()

	for _, aead := range keys {
		if len(raw) < aead.NonceSize()+aead.Overhead() {
			return "", fmt.Errorf("%w: ciphertext too short", custom_errors.ErrDecryptionFailed)
		}
		nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
		if plaintext, err := aead.Open(nil, nonce, sealed, nil); err == nil {
			return string(plaintext), nil
		}
	}
	return "", fmt.Errorf("%w: no secret matched", custom_errors.ErrDecryptionFailed)
}

func newAEAD(secret string) (cipher.AEAD, error) {
	if len(secret) != SecretSize {
		return nil, custom_errors.ErrInvalidSecret
	}
	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// IsDecryptionFailure reports whether err came from a failed Decrypt.
func IsDecryptionFailure(err error) bool {
	return errors.Is(err, custom_errors.ErrDecryptionFailed)
}
