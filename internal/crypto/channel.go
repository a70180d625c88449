package crypto

import (
	"crypto/ecdh"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// HKDF parameters for channel key derivation. Both sides must use the
	// same values or the derived keys will not line up.
	channelSalt = "salt"
	channelInfo = "key-derivation-context"

	// 32 bytes for each direction.
	channelKeyLength = 64
)

// DeriveChannelKeys performs ECDH against the peer's public key and stretches
// the shared secret through HKDF-SHA256 into 64 bytes, split into the two
// directional AES-256-GCM keys.
//
// The first 32 bytes are the client's encode key and the server's decode key;
// the last 32 bytes are the mirror. The server flag selects the perspective.
func DeriveChannelKeys(priv *ecdh.PrivateKey, peer *ecdh.PublicKey, server bool) (*ChannelKeys, error) {
	secret, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("ECDH key agreement failed: %w", err)
	}

	reader := hkdf.New(sha256.New, secret, []byte(channelSalt), []byte(channelInfo))
	material := make([]byte, channelKeyLength)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}

	var keys ChannelKeys
	if server {
		copy(keys.Decode[:], material[0:32])
		copy(keys.Encode[:], material[32:64])
	} else {
		copy(keys.Encode[:], material[0:32])
		copy(keys.Decode[:], material[32:64])
	}
	return &keys, nil
}
