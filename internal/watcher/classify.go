package watcher

import (
	"time"

	"quill/internal/vfs"
)

// action is the classifier verdict for one observation.
type action int

const (
	// actionDrop discards the observation: transient noise or a no-op.
	actionDrop action = iota
	// actionEmit acknowledges the observation and forwards it downstream.
	actionEmit
	// actionDefer opens (or refreshes) the stabilization window: the
	// observation looks like a save in progress and must stay quiet for
	// the recheck delay before it is believed.
	actionDefer
)

// classify decides what to do with a fresh observation of a watched path.
// It is pure: state transitions are applied by the actor afterwards.
func classify(entry *watchedPath, obs observation) action {
	kind := vfs.ErrKindOf(obs.result.Err())

	// An open stabilization window swallows every follow-up observation;
	// the pending payload is refreshed and the window re-armed, so only
	// the state that survives the quiet period is ever emitted.
	if entry.state == statePending {
		return actionDefer
	}

	if kind != vfs.ErrKindNone {
		switch {
		case entry.hasCache && entry.errKind == kind:
			// Failing the same way as before.
			return actionDrop
		case kind == vfs.ErrKindNotAFile:
			return actionDrop
		case kind == vfs.ErrKindNotFound || kind == vfs.ErrKindOther:
			// Editors remove-then-rename during save; a missing file
			// may reappear within the window.
			return actionDefer
		default:
			// Genuine error, e.g. permission denied.
			return actionEmit
		}
	}

	if entry.hasCache && entry.errKind == vfs.ErrKindNone && entry.digest == obs.result.Digest() {
		return actionDrop
	}

	if obs.result.Len() == 0 {
		// Truncate-then-write also looks like this.
		return actionDefer
	}

	return actionEmit
}

// statMatches reports whether the stat cache proves a path is unchanged,
// letting the caller skip the content read entirely.
func statMatches(entry *watchedPath, size int64, modTime time.Time) bool {
	if !entry.hasCache || entry.errKind != vfs.ErrKindNone {
		return false
	}
	return entry.size == size && entry.modTime.Equal(modTime)
}
