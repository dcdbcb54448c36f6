package vfs

import (
	"errors"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"
)

// FileResult is the outcome of reading one file: content, or the error that
// stands in for it. Unreadable shadow-mapped paths are stored as explicit
// error results, never silently dropped.
type FileResult struct {
	content []byte
	err     error
}

func FileOK(content []byte) FileResult {
	return FileResult{content: content}
}

func FileErr(err error) FileResult {
	if err == nil {
		err = errors.New("unknown file error")
	}
	return FileResult{err: err}
}

// ReadFile reads a path from disk into a FileResult.
func ReadFile(path string) FileResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileErr(err)
	}
	return FileOK(content)
}

func (r FileResult) Content() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.content, nil
}

func (r FileResult) Err() error {
	return r.err
}

func (r FileResult) Len() int {
	return len(r.content)
}

// Digest fingerprints the result. Error results hash the error kind so two
// reads failing the same way compare equal.
func (r FileResult) Digest() uint64 {
	if r.err != nil {
		return xxhash.Sum64String("err:" + string(ErrKindOf(r.err)))
	}
	return xxhash.Sum64(r.content)
}

func (r FileResult) Same(other FileResult) bool {
	if (r.err != nil) != (other.err != nil) {
		return false
	}
	if r.err != nil {
		return ErrKindOf(r.err) == ErrKindOf(other.err)
	}
	if len(r.content) != len(other.content) {
		return false
	}
	return xxhash.Sum64(r.content) == xxhash.Sum64(other.content)
}

// ErrKind buckets file errors into the classes the change pipeline cares
// about.
type ErrKind string

const (
	ErrKindNone     ErrKind = ""
	ErrKindNotFound ErrKind = "not_found"
	ErrKindDenied   ErrKind = "denied"
	ErrKindNotAFile ErrKind = "not_a_file"
	ErrKindOther    ErrKind = "other"
)

func ErrKindOf(err error) ErrKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, fs.ErrNotExist):
		return ErrKindNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrKindDenied
	case errors.Is(err, ErrNotAFile):
		return ErrKindNotAFile
	default:
		return ErrKindOther
	}
}

// ErrNotAFile marks paths that resolve to directories or special files.
var ErrNotAFile = errors.New("not a regular file")
