package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const nonceSize = 12

// DecryptionError signals that a stored ciphertext could not be opened with
// the configured key. Callers must treat this as a hard failure: decrypted
// tokens feed directly into outbound Authorization headers.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("token decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// deriveKey pads or truncates the configured key string to exactly 32 bytes.
// This mirrors the deployment's existing ciphertexts and is deliberately not
// a KDF; rotating to a proper derivation would invalidate stored tokens.
func deriveKey(encryptionKey string) []byte {
	key := make([]byte, 32)
	copy(key, encryptionKey)
	for i := len(encryptionKey); i < 32; i++ {
		key[i] = '0'
	}
	return key
}

// Encrypt seals plaintext with AES-256-GCM under the deployment key. Each
// call draws a fresh 96-bit nonce which is prepended to the ciphertext; the
// combined payload is returned base64-encoded.
func Encrypt(plaintext, encryptionKey string) (string, error) {
	if encryptionKey == "" {
		return "", errors.New("encryption key is required")
	}
	block, err := aes.NewCipher(deriveKey(encryptionKey))
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt. Malformed input, a truncated
// nonce, or a wrong key all surface as *DecryptionError, never as a silent
// empty string.
func Decrypt(ciphertext, encryptionKey string) (string, error) {
	if encryptionKey == "" {
		return "", &DecryptionError{Err: errors.New("encryption key is required")}
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	if len(raw) < nonceSize {
		return "", &DecryptionError{Err: errors.New("payload shorter than nonce")}
	}

	block, err := aes.NewCipher(deriveKey(encryptionKey))
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}

	nonce, payload := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return string(plaintext), nil
}
