// Package auth implements the seed-based proof-of-knowledge scheme: seed
// issuance, token derivation and trust-on-first-use verification state.
package auth

import (
	"github.com/hashvault/hashvault/internal/crypto"
)

// Credentials identify one account from the client's side. The password
// never leaves the process; only digests derived from it do.
type Credentials struct {
	Username string
	Password string
	Service  string
}

// Token binds the server-issued seed to the credentials. The same
// (seed, service, username, password) quadruple always yields the same token,
// which is what lets a returning client rebuild its file key and path
// hashing deterministically.
func (c Credentials) Token(seed string) string {
	return seed + c.Service + c.Username + c.Password
}

// HashedSeed is the proof sent to the server. Note the password/username
// order is swapped relative to Token; both sides must agree on this exactly.
func (c Credentials) HashedSeed(seed string) string {
	return crypto.SHA512B64(seed + c.Service + c.Password + c.Username)
}

// KeyMaterial derives the PBKDF2 input for envelope encryption from a token.
func KeyMaterial(token string) []byte {
	return []byte(crypto.SHA512B64(token))
}
