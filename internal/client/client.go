// Package client implements the connecting side of the vault protocol:
// handshake, the encrypted message channel, seed authentication and
// construction of the virtual file system bound to the session.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/crypto"
	"github.com/hashvault/hashvault/internal/observability"
	"github.com/hashvault/hashvault/internal/vfs"
	"github.com/hashvault/hashvault/internal/wire"
)

// ErrNotAuthorized is returned when the server silently drops a command.
// The protocol deliberately does not distinguish auth failure from unknown
// command, so this is all a client can conclude from a null response.
var ErrNotAuthorized = errors.New("not authorized (no response from server)")

// Conn is one encrypted connection to a vault server.
type Conn struct {
	address string
	http    *http.Client
	keys    *crypto.ChannelKeys
	id      int
	log     *observability.Logger
}

// Dial generates a fresh ephemeral keypair, performs the new_connection
// handshake and derives the channel keys.
func Dial(ctx context.Context, address string, log *observability.Logger) (*Conn, error) {
	if log == nil {
		log = observability.Nop()
	}
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	jwk := crypto.MarshalJWK(keyPair.Public)

	c := &Conn{address: address, http: http.DefaultClient}
	raw, err := c.post(ctx, wire.Request{Command: wire.CmdNewConnection, PublicKey: &jwk})
	if err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	var resp wire.NewConnectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	serverKey, err := crypto.UnmarshalJWK(resp.PublicKey)
	if err != nil {
		return nil, err
	}
	keys, err := crypto.DeriveChannelKeys(keyPair.Private, serverKey, false)
	if err != nil {
		return nil, err
	}

	c.keys = keys
	c.id = resp.ID
	c.log = log.WithConnection(resp.ID)
	c.log.Debug(fmt.Sprintf("connected to %s (trace %s)", address, uuid.NewString()))
	return c, nil
}

// ID returns the server-allocated connection id.
func (c *Conn) ID() int { return c.id }

func (c *Conn) post(ctx context.Context, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// message seals an inner command, round-trips it through the encrypted
// envelope and returns the decrypted inner response.
func (c *Conn) message(ctx context.Context, inner any) (json.RawMessage, error) {
	payload, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	iv, ciphertext, tag, err := crypto.Seal(c.keys.Encode, payload)
	if err != nil {
		return nil, err
	}

	raw, err := c.post(ctx, wire.Request{
		Command:    wire.CmdEncrypted,
		ID:         &c.id,
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	})
	if err != nil {
		return nil, err
	}

	var env wire.EncryptedResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unexpected server response %q: %w", truncate(raw), err)
	}
	ivIn, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv: %v", crypto.ErrDecryptionFailure, err)
	}
	tagIn, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag: %v", crypto.ErrDecryptionFailure, err)
	}
	ctIn, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext: %v", crypto.ErrDecryptionFailure, err)
	}
	return crypto.Open(c.keys.Decode, ivIn, ctIn, tagIn)
}

// Echo round-trips arbitrary data through the encrypted channel.
func (c *Conn) Echo(ctx context.Context, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.message(ctx, wire.Request{Command: wire.CmdEcho, Data: raw})
}

// GetSeed fetches (registering on first use) the account seed and binds the
// username to this connection.
func (c *Conn) GetSeed(ctx context.Context, username string) (string, error) {
	raw, err := c.message(ctx, wire.Request{Command: wire.CmdGetSeed, Username: username})
	if err != nil {
		return "", err
	}
	var seed string
	if err := json.Unmarshal(raw, &seed); err != nil {
		return "", fmt.Errorf("malformed seed response: %w", err)
	}
	return seed, nil
}

// ProveSeed submits the seed proof. A null response means the proof was
// rejected; the connection stays unverified.
func (c *Conn) ProveSeed(ctx context.Context, hashedSeed string) (bool, error) {
	raw, err := c.message(ctx, wire.Request{Command: wire.CmdProveSeed, HashedSeed: hashedSeed})
	if err != nil {
		return false, err
	}
	var resp wire.StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, nil
	}
	return resp.Status == wire.StatusSuccess, nil
}

// GetFile fetches a blob by its hashed name. Implements vfs.Remote.
func (c *Conn) GetFile(ctx context.Context, name string) (string, bool, error) {
	raw, err := c.message(ctx, wire.Request{Command: wire.CmdGetFile, FileName: name})
	if err != nil {
		return "", false, err
	}
	var resp wire.StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Status == "" {
		return "", false, ErrNotAuthorized
	}
	if resp.Status != wire.StatusSuccess {
		return "", false, nil
	}
	return resp.File, true, nil
}

// SaveFile uploads a blob under its hashed name. Implements vfs.Remote.
func (c *Conn) SaveFile(ctx context.Context, name, data string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	raw, err := c.message(ctx, wire.Request{Command: wire.CmdSaveFile, FileName: name, Data: encoded})
	if err != nil {
		return err
	}
	return expectSuccess(raw)
}

// DeleteFile removes a blob by its hashed name. Implements vfs.Remote.
func (c *Conn) DeleteFile(ctx context.Context, name string) error {
	raw, err := c.message(ctx, wire.Request{Command: wire.CmdDeleteFile, FileName: name})
	if err != nil {
		return err
	}
	return expectSuccess(raw)
}

func expectSuccess(raw json.RawMessage) error {
	var resp wire.StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Status != wire.StatusSuccess {
		return ErrNotAuthorized
	}
	return nil
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// Login runs the full connect flow: handshake, seed fetch, proof of
// knowledge, and returns a VFS bound to the session token.
func Login(ctx context.Context, address string, creds auth.Credentials, log *observability.Logger) (*vfs.VFS, error) {
	conn, err := Dial(ctx, address, log)
	if err != nil {
		return nil, err
	}
	seed, err := conn.GetSeed(ctx, creds.Username)
	if err != nil {
		return nil, err
	}
	ok, err := conn.ProveSeed(ctx, creds.HashedSeed(seed))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("seed proof rejected for %q", creds.Username)
	}
	return vfs.New(conn, creds, seed, log), nil
}
