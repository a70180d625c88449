package vfs

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile    = errors.New("missing file")
	ErrMissingFolder  = errors.New("missing folder")
	ErrFolderIsFile   = errors.New("file exists where a folder should")
	ErrFileIsFolder   = errors.New("folder exists where a file should")
	ErrQueueInvariant = errors.New("queued read targets a file pending deletion")
)

// PathError attaches the offending logical path to one of the sentinel
// error kinds above.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v at %q", e.Err, e.Path)
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(kind error, path string) error {
	return &PathError{Path: path, Err: kind}
}
