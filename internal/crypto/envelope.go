package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Envelope encryption wraps file contents and export bundles independently of
// the transport channel. The key is stretched per message with PBKDF2 from
// token-derived key material, and the seed the token was built from is
// embedded so older bundles stay decryptable after the account's active seed
// changes.

const (
	pbkdf2Iterations = 100000
	envelopeSaltSize = 12
)

// Envelope is the serialized form of envelope-encrypted data.
type Envelope struct {
	Seed          string `json:"seed"`
	IV            string `json:"iv"`
	Salt          string `json:"salt"`
	EncryptedData string `json:"encryptedData"`
}

// EncryptEnvelope encrypts plaintext under a PBKDF2-derived AES-256-GCM key.
// keyMaterial is the token-derived secret (see auth.KeyMaterial); seed is the
// server-issued seed embedded for later rederivation.
func EncryptEnvelope(keyMaterial []byte, seed string, plaintext []byte) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}
	salt := make([]byte, envelopeSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := envelopeGCM(keyMaterial, salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	out, err := json.Marshal(Envelope{
		Seed:          seed,
		IV:            base64.StdEncoding.EncodeToString(iv),
		Salt:          base64.StdEncoding.EncodeToString(salt),
		EncryptedData: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(out), nil
}

// DecryptEnvelope decrypts an envelope produced by EncryptEnvelope.
//
// When the envelope embeds a seed different from the session's, rederive is
// called with that seed to rebuild the matching key material; this is what
// lets an exported bundle from an earlier seed still open.
func DecryptEnvelope(keyMaterial []byte, seed string, rederive func(seed string) []byte, data string) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrDecryptionFailure, err)
	}

	material := keyMaterial
	if env.Seed != "" && env.Seed != seed && rederive != nil {
		material = rederive(env.Seed)
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv: %v", ErrDecryptionFailure, err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt: %v", ErrDecryptionFailure, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext: %v", ErrDecryptionFailure, err)
	}

	gcm, err := envelopeGCM(material, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return plaintext, nil
}

func envelopeGCM(keyMaterial, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(keyMaterial, salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
