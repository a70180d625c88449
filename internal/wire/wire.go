// Package wire defines the JSON command protocol spoken over the single HTTP
// endpoint. Every command is a tagged object; unknown tags are rejected at
// decode time rather than falling through.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashvault/hashvault/internal/crypto"
)

// Command tags.
const (
	CmdNewConnection = "new_connection"
	CmdEncrypted     = "encrypted"
	CmdEcho          = "echo"
	CmdGetSeed       = "get_seed"
	CmdProveSeed     = "prove_seed"
	CmdGetFile       = "get_file"
	CmdSaveFile      = "save_file"
	CmdDeleteFile    = "delete_file"
)

// ErrUnknownCommand is returned for a request whose command tag is not one of
// the known variants.
var ErrUnknownCommand = errors.New("unknown command")

// Request is the decoded form of any protocol command. Which fields are
// meaningful depends on Command; Decode enforces the tag, handlers enforce
// the fields.
type Request struct {
	Command string `json:"command"`

	// new_connection
	PublicKey *crypto.JWK `json:"public_key,omitempty"`

	// encrypted
	ID         *int   `json:"id,omitempty"`
	IV         string `json:"iv,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`

	// echo payload, or the envelope ciphertext string for save_file
	Data json.RawMessage `json:"data,omitempty"`

	// get_seed
	Username string `json:"username,omitempty"`

	// prove_seed
	HashedSeed string `json:"hashed_seed,omitempty"`

	// get_file / save_file / delete_file; already hashed by the client
	FileName string `json:"file_name,omitempty"`
}

// Decode parses a request and rejects unknown command tags.
func Decode(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	switch req.Command {
	case CmdNewConnection, CmdEncrypted, CmdEcho, CmdGetSeed, CmdProveSeed,
		CmdGetFile, CmdSaveFile, CmdDeleteFile:
		return &req, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

// NewConnectionResponse is the handshake reply: the server's public key and
// the allocated connection id.
type NewConnectionResponse struct {
	PublicKey crypto.JWK `json:"public_key"`
	ID        int        `json:"id"`
}

// EncryptedResponse carries a sealed inner response back to the client.
type EncryptedResponse struct {
	Command    string `json:"command"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Statuses for file command responses.
const (
	StatusSuccess = "success"
	StatusNoFile  = "no_file"
)

// StatusResponse answers prove_seed and the file commands. File is only set
// on a successful get_file.
type StatusResponse struct {
	Status string `json:"status"`
	File   string `json:"file,omitempty"`
}
