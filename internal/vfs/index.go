package vfs

import (
	"strings"
)

// Entry types in the index tree.
const (
	TypeFolder = "folder"
	TypeFile   = "file"
)

// Entry is one node of the index: a folder owning named children, or a file
// referencing a content-addressed blob. Hash values may be shared by several
// file entries (deduplication); lookups are always top-down by path, so no
// back-references are needed.
type Entry struct {
	Type     string            `json:"type"`
	Hash     string            `json:"hash,omitempty"`
	Contents map[string]*Entry `json:"contents,omitempty"`
}

func newFolder() *Entry {
	return &Entry{Type: TypeFolder, Contents: make(map[string]*Entry)}
}

func newFile(hash string) *Entry {
	return &Entry{Type: TypeFile, Hash: hash}
}

// normalize repairs nil Contents maps after JSON decoding so folder
// mutation never has to nil-check.
func (e *Entry) normalize() {
	if e.Type == TypeFolder && e.Contents == nil {
		e.Contents = make(map[string]*Entry)
	}
	for _, child := range e.Contents {
		child.normalize()
	}
}

// folder descends to the folder at folderPath. With makeFolders, missing
// intermediate folders are created; with softFail, a missing component
// yields (nil, nil) instead of ErrMissingFolder. A file blocking the descent
// is always ErrFolderIsFile.
func (e *Entry) folder(folderPath string, makeFolders, softFail bool) (*Entry, error) {
	if folderPath == "" {
		return e, nil
	}
	current := e
	for _, part := range strings.Split(folderPath, "/") {
		if part == "" {
			continue
		}
		next, ok := current.Contents[part]
		if !ok {
			if !makeFolders {
				if softFail {
					return nil, nil
				}
				return nil, pathErr(ErrMissingFolder, folderPath)
			}
			next = newFolder()
			current.Contents[part] = next
		}
		if next.Type != TypeFolder {
			return nil, pathErr(ErrFolderIsFile, folderPath)
		}
		current = next
	}
	return current, nil
}

// findByHash reports whether any file entry in the tree references hash,
// skipping entries whose full path is in exclude. Returns the first match's
// path for callers that care.
func (e *Entry) findByHash(hash, prefix string, exclude []string) (string, bool) {
	for name, child := range e.Contents {
		childPath := name
		if prefix != "" {
			childPath = prefix + "/" + name
		}
		if child.Type == TypeFolder {
			if p, ok := child.findByHash(hash, childPath, exclude); ok {
				return p, ok
			}
			continue
		}
		if child.Hash == hash && !contains(exclude, childPath) {
			return childPath, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// splitParent splits a logical path into its parent folder path and leaf
// name. A bare name lives in the root ("" parent).
func splitParent(filePath string) (parent, leaf string) {
	i := strings.LastIndexByte(filePath, '/')
	if i < 0 {
		return "", filePath
	}
	return filePath[:i], filePath[i+1:]
}

// JoinPaths joins path segments with "/" skipping empties.
func JoinPaths(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(part)
	}
	return b.String()
}
