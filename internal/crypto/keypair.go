package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// JWK is the JSON Web Key form of a P-256 public key, the interchange format
// used by the new_connection handshake.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// GenerateKeyPair generates a fresh ephemeral P-256 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-256 keypair: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// MarshalJWK encodes a P-256 public key as a JWK.
func MarshalJWK(pub *ecdh.PublicKey) JWK {
	// Bytes() yields the uncompressed point: 0x04 || X || Y.
	raw := pub.Bytes()
	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(raw[1:33]),
		Y:   base64.RawURLEncoding.EncodeToString(raw[33:65]),
	}
}

// UnmarshalJWK imports a JWK as a P-256 public key.
func UnmarshalJWK(jwk JWK) (*ecdh.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, fmt.Errorf("%w: kty=%q crv=%q", ErrInvalidPublicKey, jwk.Kty, jwk.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: bad x coordinate: %v", ErrInvalidPublicKey, err)
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: bad y coordinate: %v", ErrInvalidPublicKey, err)
	}
	if len(x) != 32 || len(y) != 32 {
		return nil, fmt.Errorf("%w: coordinate length %d/%d", ErrInvalidPublicKey, len(x), len(y))
	}
	raw := make([]byte, 0, 65)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}
