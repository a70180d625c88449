package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	ivSize  = 12
	tagSize = 16
)

// Seal encrypts a payload with AES-256-GCM under a fresh random 96-bit IV.
// The 128-bit authentication tag is returned separately from the ciphertext
// because the wire protocol carries iv, ciphertext and tag as three fields.
func Seal(key [32]byte, plaintext []byte) (iv, ciphertext, tag []byte, err error) {
	iv = make([]byte, ivSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	return iv, sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:], nil
}

// Open decrypts and verifies a payload sealed by Seal. A tag mismatch or
// malformed input yields ErrDecryptionFailure; no partial plaintext is ever
// returned.
func Open(key [32]byte, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(iv) != ivSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryptionFailure, ivSize, len(iv))
	}
	if len(tag) != tagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrDecryptionFailure, tagSize, len(tag))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return plaintext, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
