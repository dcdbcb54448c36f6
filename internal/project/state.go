package project

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"quill/internal/compiler"
	"quill/internal/vfs"
)

// State is the actor-owned mutable state. It is only ever touched on the
// scheduling loop; task closures receive it for the duration of their run.
type State struct {
	logicalTick    uint64
	store          *vfs.Store
	compiler       compiler.Compiler
	shadowPaths    mapset.Set[string]
	dirtySinceTick uint64
	suspended      bool
	dirty          bool

	latestDocument           *compiler.Document
	latestError              error
	latestSuccessfulDocument *compiler.Document
}

// Tick is the loop's logical clock, bumped once per processed interrupt.
func (s *State) Tick() uint64 {
	return s.logicalTick
}

// Revision is the store's current revision.
func (s *State) Revision() int64 {
	return s.store.Revision()
}

// Entry is the current compile target, empty while suspended.
func (s *State) Entry() string {
	return s.store.Entry()
}

func (s *State) Suspended() bool {
	return s.suspended
}

// Snapshot captures a fixed World for this task; it stays consistent no
// matter what the loop does afterwards.
func (s *State) Snapshot(overrides *vfs.Overrides) *vfs.World {
	return s.store.Snapshot(overrides)
}

// LatestDocument is the newest compile outcome, which may be an error.
func (s *State) LatestDocument() (*compiler.Document, error) {
	return s.latestDocument, s.latestError
}

// LatestSuccessfulDocument is the newest document from a compile that
// succeeded; queries needing a never-broken view read this one.
func (s *State) LatestSuccessfulDocument() *compiler.Document {
	return s.latestSuccessfulDocument
}

// Revise mutates the store with revision accounting. If the revision moved,
// the loop schedules a recompile once the task returns.
func (s *State) Revise(mutator func(*vfs.Store)) bool {
	return s.store.ReviseWithEffects(mutator)
}

// ShadowPaths lists the currently tracked editor buffers.
func (s *State) ShadowPaths() []string {
	paths := s.shadowPaths.ToSlice()
	sort.Strings(paths)
	return paths
}
