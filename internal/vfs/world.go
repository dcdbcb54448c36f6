package vfs

import (
	"sort"
	"sync"
)

// FontResolver locates font data for the compiler. The store compares
// resolvers by interface identity, so implementations should be pointers.
type FontResolver interface {
	Font(family string) ([]byte, bool)
}

// PackageRegistry resolves package specs to local directories. Compared by
// interface identity, like FontResolver.
type PackageRegistry interface {
	Resolve(spec string) (string, error)
}

// World is one immutable, revisioned view of every input a compile needs.
// A World never changes after Snapshot returns it: overlay maps are copied
// out of the store and the read cache generation it holds outlives store
// revisions.
type World struct {
	root     string
	entry    string
	inputs   map[string]string
	memory   map[string]FileResult
	notify   map[string]FileResult
	fonts    FontResolver
	packages PackageRegistry
	revision int64
	cache    *readCache
}

func (w *World) Root() string {
	return w.root
}

func (w *World) Entry() string {
	return w.entry
}

func (w *World) Revision() int64 {
	return w.revision
}

func (w *World) Fonts() FontResolver {
	return w.fonts
}

func (w *World) Packages() PackageRegistry {
	return w.packages
}

// Input returns one named compile input.
func (w *World) Input(key string) (string, bool) {
	value, ok := w.inputs[key]
	return value, ok
}

// Inputs returns a copy of the named compile inputs.
func (w *World) Inputs() map[string]string {
	if len(w.inputs) == 0 {
		return nil
	}
	out := make(map[string]string, len(w.inputs))
	for key, value := range w.inputs {
		out[key] = value
	}
	return out
}

// File resolves a path through the overlay layers: editor shadow first, then
// watcher-stabilized content, then the disk read cache.
func (w *World) File(path string) ([]byte, error) {
	if result, ok := w.memory[path]; ok {
		return result.Content()
	}
	if result, ok := w.notify[path]; ok {
		return result.Content()
	}
	return w.cache.read(path).Content()
}

// Shadowed reports whether an editor buffer overrides the path.
func (w *World) Shadowed(path string) bool {
	_, ok := w.memory[path]
	return ok
}

// ShadowPaths lists shadow-mapped paths in sorted order.
func (w *World) ShadowPaths() []string {
	if len(w.memory) == 0 {
		return nil
	}
	paths := make([]string, 0, len(w.memory))
	for path := range w.memory {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// readCache memoizes successful disk reads. Entries are stamped with the
// generation of their last access so long-unused files can be evicted after
// a compile.
type readCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	generation int64
}

type cacheEntry struct {
	result     FileResult
	lastAccess int64
}

func newReadCache() *readCache {
	return &readCache{
		entries: make(map[string]cacheEntry),
	}
}

func (c *readCache) read(path string) FileResult {
	if c == nil {
		return ReadFile(path)
	}
	c.mu.Lock()
	if entry, ok := c.entries[path]; ok {
		entry.lastAccess = c.generation
		c.entries[path] = entry
		c.mu.Unlock()
		return entry.result
	}
	c.mu.Unlock()

	result := ReadFile(path)

	// Failed reads are not memoized: a path that is missing now may exist
	// on the next access, and nothing invalidates entries for unwatched
	// paths.
	if result.Err() == nil {
		c.mu.Lock()
		c.entries[path] = cacheEntry{result: result, lastAccess: c.generation}
		c.mu.Unlock()
	}
	return result
}

// advance bumps the generation and drops entries untouched for more than
// budget generations. Returns how many entries were evicted.
func (c *readCache) advance(budget int64) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if budget <= 0 {
		return 0
	}
	evicted := 0
	for path, entry := range c.entries {
		if c.generation-entry.lastAccess > budget {
			delete(c.entries, path)
			evicted++
		}
	}
	return evicted
}

// fork copies the cache minus the invalidated paths. The original stays
// usable by snapshots already holding it.
func (c *readCache) fork(invalid map[string]struct{}) *readCache {
	forked := newReadCache()
	if c == nil {
		return forked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	forked.generation = c.generation
	for path, entry := range c.entries {
		if _, ok := invalid[path]; ok {
			continue
		}
		forked.entries[path] = entry
	}
	return forked
}

func (c *readCache) size() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
