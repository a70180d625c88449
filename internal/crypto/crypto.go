// Package crypto provides the cryptographic primitives for hashvault.
//
// This package implements:
//   - Ephemeral P-256 ECDH keypairs with JWK interchange
//   - HKDF-based channel key derivation
//   - AES-256-GCM authenticated encryption for the transport channel
//   - PBKDF2-based envelope encryption for file contents and bundles
//   - Content and path hashing for the content-addressed store
package crypto

import (
	"crypto/ecdh"
	"errors"
)

// ChannelKeys holds the directional AES-256-GCM keys for one connection.
// Encode seals outgoing payloads, Decode opens incoming ones; a client's
// Encode key is the server's Decode key and vice versa.
type ChannelKeys struct {
	Encode [32]byte
	Decode [32]byte
}

// KeyPair is an ephemeral P-256 keypair. Clients generate a fresh pair per
// connection attempt; the server reuses one pair for its process lifetime.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

var (
	// ErrDecryptionFailure is returned when AEAD authentication fails or the
	// ciphertext is malformed. There is no fallback and no retry.
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrInvalidPublicKey is returned when a peer's JWK cannot be imported
	// as a point on P-256.
	ErrInvalidPublicKey = errors.New("invalid public key")
)
