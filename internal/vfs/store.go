package vfs

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"quill/internal/logging"
)

// Store owns the layered project state: editor shadow overlay over
// watcher-provided content over disk, plus the monotonic revision counter.
// A single owner mutates it (the scheduling loop); everyone else reads
// through immutable World snapshots.
type Store struct {
	root     string
	entry    string
	inputs   map[string]string
	memory   map[string]FileResult
	notify   map[string]FileResult
	fonts    FontResolver
	packages PackageRegistry
	revision int64
	cache    *readCache
	touched  map[string]struct{}
	logger   *logging.Logger
}

func NewStore(root string, logger *logging.Logger) *Store {
	return &Store{
		root:    root,
		inputs:  make(map[string]string),
		memory:  make(map[string]FileResult),
		notify:  make(map[string]FileResult),
		cache:   newReadCache(),
		touched: make(map[string]struct{}),
		logger:  logger,
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Entry() string {
	return s.entry
}

func (s *Store) Revision() int64 {
	return s.revision
}

// MapShadow installs an in-memory override for the path. Call inside
// ReviseWithEffects so the revision accounts for it.
func (s *Store) MapShadow(path string, result FileResult) {
	s.memory[path] = result
	s.touched[path] = struct{}{}
}

// UnmapShadow removes an override; the path falls back to watcher or disk
// content.
func (s *Store) UnmapShadow(path string) {
	if _, ok := s.memory[path]; !ok {
		return
	}
	delete(s.memory, path)
	s.touched[path] = struct{}{}
}

// ApplyChangeSet folds watcher-observed content into the notify layer.
func (s *Store) ApplyChangeSet(set ChangeSet) {
	for _, insert := range set.Inserted {
		s.notify[insert.Path] = insert.Result
		s.touched[insert.Path] = struct{}{}
	}
	for _, removed := range set.Removed {
		delete(s.notify, removed)
		s.touched[removed] = struct{}{}
	}
}

func (s *Store) SetEntry(path string) {
	s.entry = path
}

func (s *Store) SetInputs(inputs map[string]string) {
	s.inputs = make(map[string]string, len(inputs))
	for key, value := range inputs {
		s.inputs[key] = value
	}
}

func (s *Store) SetFonts(fonts FontResolver) {
	s.fonts = fonts
}

func (s *Store) SetPackages(packages PackageRegistry) {
	s.packages = packages
}

// Overrides forks a snapshot with a different entry or inputs without
// mutating the store.
type Overrides struct {
	Entry  *string
	Inputs map[string]string
}

// Snapshot produces an immutable World at the current revision.
func (s *Store) Snapshot(overrides *Overrides) *World {
	world := &World{
		root:     s.root,
		entry:    s.entry,
		inputs:   copyStrings(s.inputs),
		memory:   copyResults(s.memory),
		notify:   copyResults(s.notify),
		fonts:    s.fonts,
		packages: s.packages,
		revision: s.revision,
		cache:    s.cache,
	}
	if overrides != nil {
		if overrides.Entry != nil {
			world.entry = *overrides.Entry
		}
		if overrides.Inputs != nil {
			world.inputs = copyStrings(overrides.Inputs)
		}
	}
	return world
}

// ReviseWithEffects runs the mutator and bumps the revision by exactly one
// iff any of {overlay content, fonts, packages, entry, inputs} actually
// changed. On a bump the store moves to a fresh read cache with the touched
// paths dropped, leaving snapshots taken earlier on the old cache.
func (s *Store) ReviseWithEffects(mutator func(*Store)) bool {
	before := s.stamp()
	mutator(s)
	changed := s.stamp() != before

	if changed {
		s.revision++
		s.cache = s.cache.fork(s.touched)
		if s.logger != nil {
			s.logger.Debug("store revised", map[string]string{
				"revision": strconv.FormatInt(s.revision, 10),
				"touched":  strconv.Itoa(len(s.touched)),
			})
		}
	}
	s.touched = make(map[string]struct{})
	return changed
}

// EvictReadCache advances the cache generation and drops entries unused for
// longer than the budget. Called once per compile.
func (s *Store) EvictReadCache(budget int64) int {
	return s.cache.advance(budget)
}

type storeStamp struct {
	overlay  uint64
	entry    string
	inputs   uint64
	fonts    any
	packages any
}

func (s *Store) stamp() storeStamp {
	return storeStamp{
		overlay:  overlayDigest(s.memory, s.notify),
		entry:    s.entry,
		inputs:   stringsDigest(s.inputs),
		fonts:    identityOf(s.fonts),
		packages: identityOf(s.packages),
	}
}

// identityToken is the comparable stand-in for a pointer-shaped resolver.
type identityToken struct {
	typ     reflect.Type
	pointer uintptr
}

// identityOf reduces a resolver to a comparable token so stamp comparison
// never panics. Pointer-shaped implementations compare by address,
// comparable values by value, and anything else degrades to type identity.
func identityOf(value any) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return identityToken{typ: v.Type(), pointer: v.Pointer()}
	}
	if v.Type().Comparable() {
		return value
	}
	return v.Type()
}

func overlayDigest(memory, notify map[string]FileResult) uint64 {
	digest := xxhash.New()
	for _, path := range sortedKeys(memory) {
		digest.WriteString("m\x00")
		digest.WriteString(path)
		digest.WriteString("\x00")
		writeUint64(digest, memory[path].Digest())
	}
	for _, path := range sortedKeys(notify) {
		digest.WriteString("n\x00")
		digest.WriteString(path)
		digest.WriteString("\x00")
		writeUint64(digest, notify[path].Digest())
	}
	return digest.Sum64()
}

func stringsDigest(values map[string]string) uint64 {
	digest := xxhash.New()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		digest.WriteString(key)
		digest.WriteString("\x00")
		digest.WriteString(values[key])
		digest.WriteString("\x00")
	}
	return digest.Sum64()
}

func writeUint64(digest *xxhash.Digest, value uint64) {
	var raw [8]byte
	for i := 0; i < 8; i++ {
		raw[i] = byte(value >> (8 * i))
	}
	digest.Write(raw[:])
}

func sortedKeys(results map[string]FileResult) []string {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func copyStrings(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func copyResults(results map[string]FileResult) map[string]FileResult {
	out := make(map[string]FileResult, len(results))
	for key, value := range results {
		out[key] = value
	}
	return out
}
