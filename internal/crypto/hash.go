package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strconv"
	"strings"
)

// QuickHash computes the base64 SHA-1 content digest used for deduplication
// and blob naming. Collision resistance against an adversary is not required
// here: the digest only keys the client's own content.
func QuickHash(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashFilePath maps a logical path to the opaque, filesystem-safe blob name
// stored on the server. The token is mixed in so two users (or two services)
// never collide on the same name, and the server learns nothing about the
// plaintext path.
//
// Each digest byte is rendered in base 32 and concatenated, matching the
// protocol's name format.
func HashFilePath(path, token string) string {
	sum := sha256.Sum256([]byte(path + token))
	var b strings.Builder
	b.Grow(len(sum) * 2)
	for _, c := range sum {
		b.WriteString(strconv.FormatUint(uint64(c), 32))
	}
	return b.String()
}

// SHA512B64 returns the base64 SHA-512 digest of s. Used for the seed proof
// and for deriving envelope key material from the token.
func SHA512B64(s string) string {
	sum := sha512.Sum512([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}
