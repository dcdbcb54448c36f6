package watcher

import (
	"errors"
	"io/fs"
	"testing"

	"quill/internal/vfs"
)

func stableEntry(content string) *watchedPath {
	entry := &watchedPath{state: stateStable}
	cacheResult(entry, vfs.FileOK([]byte(content)))
	return entry
}

func stableErrEntry(err error) *watchedPath {
	entry := &watchedPath{state: stateStable}
	cacheResult(entry, vfs.FileErr(err))
	return entry
}

func TestClassifyVerdicts(t *testing.T) {
	cases := []struct {
		name  string
		entry *watchedPath
		obs   observation
		want  action
	}{
		{
			name:  "new content on a fresh path",
			entry: &watchedPath{},
			obs:   observation{result: vfs.FileOK([]byte("hello"))},
			want:  actionEmit,
		},
		{
			name:  "unchanged content",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileOK([]byte("hello"))},
			want:  actionDrop,
		},
		{
			name:  "changed content",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileOK([]byte("goodbye"))},
			want:  actionEmit,
		},
		{
			name:  "empty content looks like a truncate in progress",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileOK(nil)},
			want:  actionDefer,
		},
		{
			name:  "missing file may reappear",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileErr(fs.ErrNotExist)},
			want:  actionDefer,
		},
		{
			name:  "directory in place of a file",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileErr(vfs.ErrNotAFile)},
			want:  actionDrop,
		},
		{
			name:  "permission denied is a real error",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileErr(fs.ErrPermission)},
			want:  actionEmit,
		},
		{
			name:  "failing the same way as before",
			entry: stableErrEntry(fs.ErrPermission),
			obs:   observation{result: vfs.FileErr(fs.ErrPermission)},
			want:  actionDrop,
		},
		{
			name:  "unclassified error defers",
			entry: stableEntry("hello"),
			obs:   observation{result: vfs.FileErr(errors.New("io timeout"))},
			want:  actionDefer,
		},
		{
			name:  "open window swallows content",
			entry: &watchedPath{state: statePending},
			obs:   observation{result: vfs.FileOK([]byte("mid-save"))},
			want:  actionDefer,
		},
		{
			name:  "open window swallows errors",
			entry: &watchedPath{state: statePending},
			obs:   observation{result: vfs.FileErr(fs.ErrNotExist)},
			want:  actionDefer,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got := classify(testCase.entry, testCase.obs)
			if got != testCase.want {
				t.Fatalf("classify = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestStatMatchRequiresCleanCache(t *testing.T) {
	entry := stableEntry("hello")
	entry.size = 5

	if !statMatches(entry, 5, entry.modTime) {
		t.Fatalf("expected stat match to short-circuit")
	}

	if statMatches(entry, 6, entry.modTime) {
		t.Fatalf("expected size change to force reclassification")
	}

	if statMatches(&watchedPath{}, 5, entry.modTime) {
		t.Fatalf("expected uncached entry to force reclassification")
	}

	failing := stableErrEntry(fs.ErrNotExist)
	if statMatches(failing, 0, failing.modTime) {
		t.Fatalf("expected cached error to force reclassification")
	}
}
