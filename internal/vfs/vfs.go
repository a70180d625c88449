// Package vfs implements the content-addressed virtual file system: an
// encrypted hash-indexed tree of folders and files stored as opaque blobs on
// an untrusted server, with content deduplication, orphan cleanup and a
// single-flight operation queue.
package vfs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/crypto"
	"github.com/hashvault/hashvault/internal/observability"
)

// IndexPath is the logical name the encrypted index blob is stored under.
const IndexPath = "index.json"

// Remote is the transport surface the VFS needs: opaque blob operations
// against pre-hashed names. Implemented by client.Conn.
type Remote interface {
	GetFile(ctx context.Context, name string) (data string, ok bool, err error)
	SaveFile(ctx context.Context, name, data string) error
	DeleteFile(ctx context.Context, name string) error
}

// VFS is one mounted view of an account's file tree. It exclusively owns the
// token-derived key material; all public operations pass through the
// operation queue, so the index is only ever touched by one operation at a
// time.
type VFS struct {
	remote      Remote
	creds       auth.Credentials
	seed        string
	token       string
	keyMaterial []byte
	log         *observability.Logger
	queue       *opQueue

	// change-detection cache: digest of the last index written this session
	lastIndexHash string

	mu         sync.Mutex
	cache      map[string]string
	refreshing map[string]bool
}

// New binds a VFS to an authenticated connection and the session seed.
func New(remote Remote, creds auth.Credentials, seed string, log *observability.Logger) *VFS {
	if log == nil {
		log = observability.Nop()
	}
	token := creds.Token(seed)
	return &VFS{
		remote:      remote,
		creds:       creds,
		seed:        seed,
		token:       token,
		keyMaterial: auth.KeyMaterial(token),
		log:         log,
		queue:       newOpQueue(),
		cache:       make(map[string]string),
		refreshing:  make(map[string]bool),
	}
}

// Close stops the operation queue worker. Pending operations already
// submitted still run to completion.
func (v *VFS) Close() {
	v.queue.close()
}

// SaveFile writes data at the logical path, creating intermediate folders.
func (v *VFS) SaveFile(ctx context.Context, filePath, data string) error {
	return v.save(ctx, filePath, data, false)
}

// SaveFileCached additionally records data in the local read cache so a
// following GetFile can answer without a round trip.
func (v *VFS) SaveFileCached(ctx context.Context, filePath, data string) error {
	return v.save(ctx, filePath, data, true)
}

func (v *VFS) save(ctx context.Context, filePath, data string, cache bool) error {
	_, err := v.queue.submit(ctx, &task{
		kind: opSave,
		path: filePath,
		data: data,
		run: func(ctx context.Context) (any, error) {
			return nil, v.doSaveFile(ctx, filePath, data, cache)
		},
	})
	return err
}

// GetFile reads the file at the logical path. A cached copy is returned
// immediately and refreshed in the background.
func (v *VFS) GetFile(ctx context.Context, filePath string) (string, error) {
	v.mu.Lock()
	if data, ok := v.cache[filePath]; ok {
		v.refreshing[filePath] = true
		v.mu.Unlock()
		go v.refreshCached(filePath)
		return data, nil
	}
	v.mu.Unlock()
	return v.fetch(ctx, filePath)
}

func (v *VFS) refreshCached(filePath string) {
	data, err := v.fetch(context.Background(), filePath)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil && v.refreshing[filePath] {
		v.cache[filePath] = data
	}
	delete(v.refreshing, filePath)
}

func (v *VFS) fetch(ctx context.Context, filePath string) (string, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opGet,
		path: filePath,
		run: func(ctx context.Context) (any, error) {
			return v.doGetFile(ctx, filePath)
		},
	})
	if err != nil {
		return "", err
	}
	data, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected queue result %T", value)
	}
	return data, nil
}

// DeleteFile removes the file at the logical path, deleting its blob when no
// other index entry references the content and pruning now-empty folders.
func (v *VFS) DeleteFile(ctx context.Context, filePath string) error {
	_, err := v.queue.submit(ctx, &task{
		kind: opDelete,
		path: filePath,
		run: func(ctx context.Context) (any, error) {
			return nil, v.doDeleteFile(ctx, filePath)
		},
	})
	return err
}

// DoesFileExist soft-resolves the path and reports presence of the leaf.
func (v *VFS) DoesFileExist(ctx context.Context, filePath string) (bool, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opExists,
		path: filePath,
		run: func(ctx context.Context) (any, error) {
			return v.doFileExists(ctx, filePath)
		},
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// GetIndex returns the current index tree.
func (v *VFS) GetIndex(ctx context.Context) (*Entry, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			return v.loadIndex(ctx)
		},
	})
	if err != nil {
		return nil, err
	}
	return value.(*Entry), nil
}

// SaveIndex persists an index tree, skipping the write when nothing changed.
func (v *VFS) SaveIndex(ctx context.Context, index *Entry) error {
	_, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			return nil, v.storeIndex(ctx, index)
		},
	})
	return err
}

// Bundle is the import/export interchange format. The two maps are
// independent of the index's own hashes so a bundle can be merged without
// the source index.
type Bundle struct {
	ID            string            `json:"bundleId,omitempty"`
	PathToHashMap map[string]string `json:"pathToHashMap"`
	HashToFileMap map[string]string `json:"hashToFileMap"`
}

// ExportFiles builds a plaintext bundle of the given paths plus extras.
func (v *VFS) ExportFiles(ctx context.Context, filePaths []string, extraFiles map[string]string) (string, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			bundle, err := v.buildBundle(ctx, filePaths, extraFiles)
			if err != nil {
				return nil, err
			}
			out, err := json.Marshal(bundle)
			if err != nil {
				return nil, err
			}
			return string(out), nil
		},
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// ExportEncryptedFiles wraps the bundle in the PBKDF2 envelope so it can be
// stored or shipped outside the session.
func (v *VFS) ExportEncryptedFiles(ctx context.Context, filePaths []string, extraFiles map[string]string) (string, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			bundle, err := v.buildBundle(ctx, filePaths, extraFiles)
			if err != nil {
				return nil, err
			}
			out, err := json.Marshal(bundle)
			if err != nil {
				return nil, err
			}
			return crypto.EncryptEnvelope(v.keyMaterial, v.seed, out)
		},
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// ImportFiles replays a plaintext bundle through saveFile and returns the
// imported paths.
func (v *VFS) ImportFiles(ctx context.Context, bundle string) ([]string, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			var b Bundle
			if err := json.Unmarshal([]byte(bundle), &b); err != nil {
				return nil, fmt.Errorf("malformed bundle: %w", err)
			}
			return v.importBundle(ctx, &b)
		},
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// ImportEncryptedFiles decrypts an envelope-wrapped bundle and imports it.
func (v *VFS) ImportEncryptedFiles(ctx context.Context, encrypted string) ([]string, error) {
	value, err := v.queue.submit(ctx, &task{
		kind: opOther,
		run: func(ctx context.Context) (any, error) {
			plain, err := crypto.DecryptEnvelope(v.keyMaterial, v.seed, v.rederive, encrypted)
			if err != nil {
				return nil, err
			}
			var b Bundle
			if err := json.Unmarshal(plain, &b); err != nil {
				return nil, fmt.Errorf("malformed bundle: %w", err)
			}
			return v.importBundle(ctx, &b)
		},
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// ---- queued operation bodies (run only on the queue worker) ----

func (v *VFS) doSaveFile(ctx context.Context, filePath, data string, cache bool) error {
	if cache {
		v.mu.Lock()
		v.cache[filePath] = data
		delete(v.refreshing, filePath)
		v.mu.Unlock()
	}

	index, err := v.loadIndex(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	fileHash := crypto.QuickHash(encoded)
	_, duplicate := index.findByHash(fileHash, "", nil)

	parentPath, leaf := splitParent(filePath)
	parent, err := index.folder(parentPath, true, false)
	if err != nil {
		return err
	}

	oldHash := ""
	if old, ok := parent.Contents[leaf]; ok {
		if old.Type == TypeFolder {
			return pathErr(ErrFileIsFolder, filePath)
		}
		oldHash = old.Hash
	}

	// Content already stored anywhere in the tree means no upload at all.
	if !duplicate && oldHash != fileHash {
		if err := v.baseSave(ctx, fileHash, encoded); err != nil {
			return err
		}
	}
	parent.Contents[leaf] = newFile(fileHash)

	if err := v.storeIndex(ctx, index); err != nil {
		return err
	}

	// The index write above must land before the old blob disappears: a
	// crash in between leaves an orphaned blob, never a dangling reference.
	if oldHash != "" && oldHash != fileHash {
		if _, stillReferenced := index.findByHash(oldHash, "", nil); !stillReferenced {
			if err := v.baseDelete(ctx, oldHash); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *VFS) doGetFile(ctx context.Context, filePath string) (string, error) {
	index, err := v.loadIndex(ctx)
	if err != nil {
		return "", err
	}
	parentPath, leaf := splitParent(filePath)
	parent, err := index.folder(parentPath, false, false)
	if err != nil {
		return "", err
	}
	entry, ok := parent.Contents[leaf]
	if !ok {
		return "", pathErr(ErrMissingFile, filePath)
	}
	if entry.Type == TypeFolder {
		return "", pathErr(ErrFileIsFolder, filePath)
	}

	raw, err := v.baseGet(ctx, entry.Hash)
	if err != nil {
		return "", err
	}
	var data string
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("corrupt blob %s: %w", entry.Hash, err)
	}
	return data, nil
}

func (v *VFS) doDeleteFile(ctx context.Context, filePath string) error {
	index, err := v.loadIndex(ctx)
	if err != nil {
		return err
	}
	parentPath, leaf := splitParent(filePath)
	parent, err := index.folder(parentPath, false, false)
	if err != nil {
		return err
	}
	entry, ok := parent.Contents[leaf]
	if !ok {
		return pathErr(ErrMissingFile, filePath)
	}
	if entry.Type == TypeFolder {
		return pathErr(ErrFileIsFolder, filePath)
	}
	delete(parent.Contents, leaf)

	// Last reference gone: the blob is an orphan now, remove it.
	if _, stillReferenced := index.findByHash(entry.Hash, "", nil); !stillReferenced {
		if err := v.baseDelete(ctx, entry.Hash); err != nil {
			return err
		}
	}

	if err := v.pruneEmptyFolders(index, parentPath); err != nil {
		return err
	}
	return v.storeIndex(ctx, index)
}

// pruneEmptyFolders deletes now-empty folders from the deleted file's parent
// upward. The root is never removed.
func (v *VFS) pruneEmptyFolders(index *Entry, parentPath string) error {
	if parentPath == "" {
		return nil
	}
	segments := splitSegments(parentPath)
	for len(segments) > 0 {
		folder, err := index.folder(JoinPaths(segments...), false, false)
		if err != nil {
			return err
		}
		if len(folder.Contents) > 0 {
			break
		}
		parent, err := index.folder(JoinPaths(segments[:len(segments)-1]...), false, false)
		if err != nil {
			return err
		}
		delete(parent.Contents, segments[len(segments)-1])
		segments = segments[:len(segments)-1]
	}
	return nil
}

func (v *VFS) doFileExists(ctx context.Context, filePath string) (bool, error) {
	index, err := v.loadIndex(ctx)
	if err != nil {
		return false, err
	}
	parentPath, leaf := splitParent(filePath)
	parent, err := index.folder(parentPath, false, true)
	if err != nil || parent == nil {
		return false, err
	}
	_, ok := parent.Contents[leaf]
	return ok, nil
}

func (v *VFS) buildBundle(ctx context.Context, filePaths []string, extraFiles map[string]string) (*Bundle, error) {
	bundle := &Bundle{
		ID:            uuid.NewString(),
		PathToHashMap: make(map[string]string),
		HashToFileMap: make(map[string]string),
	}
	for _, filePath := range filePaths {
		file, err := v.doGetFile(ctx, filePath)
		if err != nil {
			return nil, err
		}
		hash := crypto.QuickHash([]byte(file))
		bundle.PathToHashMap[filePath] = hash
		bundle.HashToFileMap[hash] = file
	}
	for filePath, file := range extraFiles {
		hash := crypto.QuickHash([]byte(file))
		bundle.PathToHashMap[filePath] = hash
		bundle.HashToFileMap[hash] = file
	}
	return bundle, nil
}

func (v *VFS) importBundle(ctx context.Context, b *Bundle) ([]string, error) {
	paths := make([]string, 0, len(b.PathToHashMap))
	for filePath := range b.PathToHashMap {
		paths = append(paths, filePath)
	}
	sort.Strings(paths)
	for _, filePath := range paths {
		file, ok := b.HashToFileMap[b.PathToHashMap[filePath]]
		if !ok {
			return nil, fmt.Errorf("bundle missing content for %q", filePath)
		}
		if err := v.doSaveFile(ctx, filePath, file, false); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// ---- index persistence ----

func (v *VFS) loadIndex(ctx context.Context) (*Entry, error) {
	raw, err := v.baseGet(ctx, IndexPath)
	if errors.Is(err, ErrMissingFile) {
		index := newFolder()
		if err := v.storeIndex(ctx, index); err != nil {
			return nil, err
		}
		return index, nil
	}
	if err != nil {
		return nil, err
	}
	index := &Entry{}
	if err := json.Unmarshal(raw, index); err != nil {
		return nil, fmt.Errorf("corrupt index: %w", err)
	}
	index.normalize()
	return index, nil
}

func (v *VFS) storeIndex(ctx context.Context, index *Entry) error {
	serialized, err := json.Marshal(index)
	if err != nil {
		return err
	}
	sum := blake3.Sum256(serialized)
	digest := hex.EncodeToString(sum[:])
	if digest == v.lastIndexHash {
		// Nothing changed since the last write this session; the server is
		// untrusted and idempotent, so skipping is purely an optimization.
		return nil
	}
	v.lastIndexHash = digest
	return v.baseSave(ctx, IndexPath, serialized)
}

// ---- transport plumbing ----

// baseGet fetches and decrypts the blob stored under a logical name.
func (v *VFS) baseGet(ctx context.Context, logicalPath string) ([]byte, error) {
	name := crypto.HashFilePath(logicalPath, v.token)
	data, ok, err := v.remote.GetFile(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathErr(ErrMissingFile, logicalPath)
	}
	return crypto.DecryptEnvelope(v.keyMaterial, v.seed, v.rederive, data)
}

// baseSave encrypts plaintext and uploads it under the hashed logical name.
func (v *VFS) baseSave(ctx context.Context, logicalPath string, plaintext []byte) error {
	encrypted, err := crypto.EncryptEnvelope(v.keyMaterial, v.seed, plaintext)
	if err != nil {
		return err
	}
	return v.remote.SaveFile(ctx, crypto.HashFilePath(logicalPath, v.token), encrypted)
}

func (v *VFS) baseDelete(ctx context.Context, logicalPath string) error {
	return v.remote.DeleteFile(ctx, crypto.HashFilePath(logicalPath, v.token))
}

// rederive rebuilds envelope key material for a foreign seed, supporting
// decryption of bundles exported under an earlier seed.
func (v *VFS) rederive(seed string) []byte {
	return auth.KeyMaterial(v.creds.Token(seed))
}

func splitSegments(path string) []string {
	if path == "" {
		return nil
	}
	var segments []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
