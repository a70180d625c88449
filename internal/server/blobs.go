package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore keeps each user's opaque ciphertext blobs as flat files under
// <root>/<username>/<name>.enc. Names arrive pre-hashed from clients, so the
// layout leaks nothing about plaintext paths.
type BlobStore struct {
	root string
}

// NewBlobStore creates the store root if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Root returns the store's base directory.
func (b *BlobStore) Root() string { return b.root }

func (b *BlobStore) path(username, name string) (string, error) {
	if !safeSegment(username) || !safeSegment(name) {
		return "", fmt.Errorf("unsafe blob path segment")
	}
	return filepath.Join(b.root, username, name+".enc"), nil
}

// Get reads a blob, reporting ok=false when it does not exist.
func (b *BlobStore) Get(username, name string) (string, bool, error) {
	p, err := b.path(username, name)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Put writes a blob, creating the user directory on first save.
func (b *BlobStore) Put(username, name, data string) error {
	p, err := b.path(username, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(data), 0600)
}

// Delete removes a blob; deleting a missing blob is not an error.
func (b *BlobStore) Delete(username, name string) error {
	p, err := b.path(username, name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// safeSegment rejects anything that could escape the store root. Hashed blob
// names never trip this; client-chosen usernames can.
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}
