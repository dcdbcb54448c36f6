package watcher

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/vfs"
)

const (
	defaultRecheckDelay   = 50 * time.Millisecond
	defaultLifetimeRounds = 30
)

// Options controls watch actor behavior.
type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry

	// RecheckDelay is how long a suspicious file state must stay quiet
	// before it is believed.
	RecheckDelay time.Duration

	// LifetimeRounds is how many subscription rounds an unrenewed path
	// survives before it is unwatched and pruned.
	LifetimeRounds int

	// OnChangeSet receives every coalesced change-set the actor emits,
	// together with an upstream update when one is being replayed.
	OnChangeSet func(vfs.ChangeSet, *UpstreamUpdate)
}

// UpstreamUpdate carries a deferred memory edit that must be sequenced
// behind filesystem re-validation. The tick correlates it back to the
// scheduling loop that forwarded it.
type UpstreamUpdate struct {
	Tick   uint64
	Edit   vfs.ChangeSet
	Resync bool
}

// osWatcher is the slice of the OS watch API the actor consumes.
type osWatcher interface {
	Add(path string) error
	Remove(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

type fsnotifyBackend struct {
	inner *fsnotify.Watcher
}

func newFsnotifyBackend() (*fsnotifyBackend, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifyBackend{inner: inner}, nil
}

func (b *fsnotifyBackend) Add(path string) error {
	return b.inner.Add(path)
}

func (b *fsnotifyBackend) Remove(path string) error {
	return b.inner.Remove(path)
}

func (b *fsnotifyBackend) Events() <-chan fsnotify.Event {
	return b.inner.Events
}

func (b *fsnotifyBackend) Errors() <-chan error {
	return b.inner.Errors
}

func (b *fsnotifyBackend) Close() error {
	return b.inner.Close()
}

type pathState int

const (
	stateStable pathState = iota
	statePending
)

// watchedPath is one entry of the watched-path table. The cache fields hold
// the last observation acknowledged to the consumer so no-op events can be
// dropped without re-emitting.
type watchedPath struct {
	lifetime  int
	isWatched bool
	seen      bool
	state     pathState

	pendingTick    uint64
	pendingPayload vfs.FileResult

	hasCache bool
	errKind  vfs.ErrKind
	digest   uint64
	size     int64
	modTime  time.Time
}

// pendingRecheck is a scheduled self-message, consumed once.
type pendingRecheck struct {
	due  time.Time
	tick uint64
	path string
}

// observation is one fresh stat+read of a path.
type observation struct {
	result  vfs.FileResult
	size    int64
	modTime time.Time
}

// observe stats and reads a path from disk. Directories and special files
// resolve to ErrNotAFile.
func observe(path string) observation {
	info, err := os.Stat(path)
	if err != nil {
		return observation{result: vfs.FileErr(err)}
	}
	return observeInfo(path, info)
}

// observeInfo reads the content for an already-statted path.
func observeInfo(path string, info os.FileInfo) observation {
	if !info.Mode().IsRegular() {
		return observation{result: vfs.FileErr(vfs.ErrNotAFile)}
	}
	return observation{
		result:  vfs.ReadFile(path),
		size:    info.Size(),
		modTime: info.ModTime(),
	}
}
