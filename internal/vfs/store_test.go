package vfs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func readWorldFile(t *testing.T, world *World, path string) string {
	t.Helper()
	content, err := world.File(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func TestReviseBumpsRevisionByExactlyOne(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	changed := store.ReviseWithEffects(func(store *Store) {
		store.MapShadow("/p/a.typ", FileOK([]byte("one")))
		store.MapShadow("/p/b.typ", FileOK([]byte("two")))
	})
	if !changed {
		t.Fatalf("expected the first revise to change the store")
	}
	if store.Revision() != 1 {
		t.Fatalf("revision = %d, want 1", store.Revision())
	}

	// Remapping identical content is a no-op and must not burn a revision.
	changed = store.ReviseWithEffects(func(store *Store) {
		store.MapShadow("/p/a.typ", FileOK([]byte("one")))
	})
	if changed {
		t.Fatalf("identical remap reported as a change")
	}
	if store.Revision() != 1 {
		t.Fatalf("revision = %d, want 1 after no-op", store.Revision())
	}

	changed = store.ReviseWithEffects(func(store *Store) {
		store.MapShadow("/p/a.typ", FileOK([]byte("three")))
	})
	if !changed || store.Revision() != 2 {
		t.Fatalf("content change: changed=%v revision=%d, want true/2", changed, store.Revision())
	}
}

func TestSnapshotStaysImmutableAcrossRevisions(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	store.ReviseWithEffects(func(store *Store) {
		store.MapShadow("/p/a.typ", FileOK([]byte("first")))
	})

	older := store.Snapshot(nil)

	store.ReviseWithEffects(func(store *Store) {
		store.MapShadow("/p/a.typ", FileOK([]byte("second")))
	})
	newer := store.Snapshot(nil)

	if got := readWorldFile(t, older, "/p/a.typ"); got != "first" {
		t.Fatalf("older snapshot reads %q, want %q", got, "first")
	}
	if got := readWorldFile(t, newer, "/p/a.typ"); got != "second" {
		t.Fatalf("newer snapshot reads %q, want %q", got, "second")
	}
	if older.Revision() >= newer.Revision() {
		t.Fatalf("revisions not monotonic: %d then %d", older.Revision(), newer.Revision())
	}
}

func TestLayerPrecedenceShadowOverNotifyOverDisk(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.typ", "disk")
	store := NewStore(dir, nil)

	var set ChangeSet
	set.Insert(path, FileOK([]byte("notify")))
	store.ReviseWithEffects(func(store *Store) {
		store.ApplyChangeSet(set)
	})
	if got := readWorldFile(t, store.Snapshot(nil), path); got != "notify" {
		t.Fatalf("notify layer: got %q", got)
	}

	store.ReviseWithEffects(func(store *Store) {
		store.MapShadow(path, FileOK([]byte("shadow")))
	})
	world := store.Snapshot(nil)
	if got := readWorldFile(t, world, path); got != "shadow" {
		t.Fatalf("shadow layer: got %q", got)
	}
	if !world.Shadowed(path) {
		t.Fatalf("expected %s to be shadowed", path)
	}

	store.ReviseWithEffects(func(store *Store) {
		store.UnmapShadow(path)
	})
	if got := readWorldFile(t, store.Snapshot(nil), path); got != "notify" {
		t.Fatalf("after unmap: got %q", got)
	}

	var removal ChangeSet
	removal.Remove(path)
	store.ReviseWithEffects(func(store *Store) {
		store.ApplyChangeSet(removal)
	})
	if got := readWorldFile(t, store.Snapshot(nil), path); got != "disk" {
		t.Fatalf("after notify removal: got %q", got)
	}
}

func TestEntryAndInputsParticipateInRevision(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetEntry("/p/main.typ")
	}); !changed {
		t.Fatalf("entry change not detected")
	}
	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetEntry("/p/main.typ")
	}); changed {
		t.Fatalf("identical entry reported as change")
	}

	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetInputs(map[string]string{"mode": "draft"})
	}); !changed {
		t.Fatalf("inputs change not detected")
	}
	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetInputs(map[string]string{"mode": "draft"})
	}); changed {
		t.Fatalf("identical inputs reported as change")
	}

	world := store.Snapshot(nil)
	if value, ok := world.Input("mode"); !ok || value != "draft" {
		t.Fatalf("input mode = %q/%v, want draft/true", value, ok)
	}
}

type staticFonts struct{}

func (staticFonts) Font(string) ([]byte, bool) {
	return nil, false
}

func TestFontResolverComparedByIdentity(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	first := &staticFonts{}
	second := &staticFonts{}

	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetFonts(first)
	}); !changed {
		t.Fatalf("installing a resolver not detected")
	}
	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetFonts(first)
	}); changed {
		t.Fatalf("same resolver reported as change")
	}
	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetFonts(second)
	}); !changed {
		t.Fatalf("swapping resolvers not detected")
	}
}

func TestSnapshotOverridesLeaveStoreUntouched(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	store.SetEntry("/p/main.typ")

	entry := "/p/preview.typ"
	world := store.Snapshot(&Overrides{
		Entry:  &entry,
		Inputs: map[string]string{"mode": "preview"},
	})

	if world.Entry() != entry {
		t.Fatalf("override entry = %q, want %q", world.Entry(), entry)
	}
	if value, _ := world.Input("mode"); value != "preview" {
		t.Fatalf("override input = %q, want preview", value)
	}
	if store.Entry() != "/p/main.typ" {
		t.Fatalf("store entry mutated to %q", store.Entry())
	}
	if _, ok := store.Snapshot(nil).Input("mode"); ok {
		t.Fatalf("store inputs mutated")
	}
}

func TestReadCacheEvictsAfterBudget(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.typ", "disk")
	store := NewStore(dir, nil)

	readWorldFile(t, store.Snapshot(nil), path)
	if size := store.cache.size(); size != 1 {
		t.Fatalf("cache size = %d after read, want 1", size)
	}

	store.EvictReadCache(1)
	if size := store.cache.size(); size != 1 {
		t.Fatalf("entry evicted within budget, size = %d", size)
	}

	store.EvictReadCache(1)
	if size := store.cache.size(); size != 0 {
		t.Fatalf("entry survived past budget, size = %d", size)
	}

	// A touched entry is kept alive across generations.
	readWorldFile(t, store.Snapshot(nil), path)
	store.EvictReadCache(1)
	readWorldFile(t, store.Snapshot(nil), path)
	store.EvictReadCache(1)
	if size := store.cache.size(); size != 1 {
		t.Fatalf("recently read entry evicted, size = %d", size)
	}
}

func TestReviseDropsTouchedPathsFromCache(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.typ", "old")
	store := NewStore(dir, nil)

	older := store.Snapshot(nil)
	if got := readWorldFile(t, older, path); got != "old" {
		t.Fatalf("initial read = %q", got)
	}

	writeTestFile(t, dir, "a.typ", "new")
	var set ChangeSet
	set.Insert(path, FileOK([]byte("new")))
	store.ReviseWithEffects(func(store *Store) {
		store.ApplyChangeSet(set)
		store.MapShadow(path, FileOK([]byte("shadow")))
		store.UnmapShadow(path)
	})

	// The older snapshot keeps its cached disk read.
	if got := readWorldFile(t, older, path); got != "old" {
		t.Fatalf("older snapshot re-read disk, got %q", got)
	}
	if got := readWorldFile(t, store.Snapshot(nil), path); got != "new" {
		t.Fatalf("current snapshot = %q, want %q", got, "new")
	}

	// Dropping the notify entry falls back to a fresh disk read, not the
	// stale cached one.
	var removal ChangeSet
	removal.Remove(path)
	store.ReviseWithEffects(func(store *Store) {
		store.ApplyChangeSet(removal)
	})
	if got := readWorldFile(t, store.Snapshot(nil), path); got != "new" {
		t.Fatalf("disk fallback = %q, want %q", got, "new")
	}
	if got := readWorldFile(t, older, path); got != "old" {
		t.Fatalf("older snapshot drifted to %q", got)
	}
}

func TestFailedReadRetriedAfterFileAppears(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.typ")
	store := NewStore(dir, nil)

	world := store.Snapshot(nil)
	if _, err := world.File(path); err == nil {
		t.Fatalf("expected a read error before the file exists")
	}

	writeTestFile(t, dir, "late.typ", "finally")
	if got := readWorldFile(t, world, path); got != "finally" {
		t.Fatalf("read after create = %q, want %q", got, "finally")
	}
	if size := store.cache.size(); size != 1 {
		t.Fatalf("cache size = %d, want only the successful read", size)
	}
}

type sliceFonts struct {
	families []string
}

func (sliceFonts) Font(string) ([]byte, bool) {
	return nil, false
}

func TestValueResolverNeverPanicsOnRevise(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetFonts(sliceFonts{families: []string{"Libertinus"}})
	}); !changed {
		t.Fatalf("installing a resolver not detected")
	}

	// The stamp comparison now runs against the non-comparable resolver
	// already installed.
	if changed := store.ReviseWithEffects(func(store *Store) {
		store.SetEntry("/p/main.typ")
	}); !changed {
		t.Fatalf("entry change not detected")
	}
}
