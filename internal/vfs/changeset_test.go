package vfs

import (
	"reflect"
	"testing"
)

func TestChangeSetInsertWinsOverPriorRemove(t *testing.T) {
	var set ChangeSet
	set.Remove("/p/a.typ")
	set.Insert("/p/a.typ", FileOK([]byte("back")))

	if len(set.Removed) != 0 {
		t.Fatalf("removed = %v, want empty", set.Removed)
	}
	if got := set.InsertedPaths(); !reflect.DeepEqual(got, []string{"/p/a.typ"}) {
		t.Fatalf("inserted = %v", got)
	}
}

func TestChangeSetRemoveSupersedesPriorInsert(t *testing.T) {
	var set ChangeSet
	set.Insert("/p/a.typ", FileOK([]byte("gone soon")))
	set.Remove("/p/a.typ")
	set.Remove("/p/a.typ")

	if len(set.Inserted) != 0 {
		t.Fatalf("inserted = %v, want empty", set.InsertedPaths())
	}
	if !reflect.DeepEqual(set.Removed, []string{"/p/a.typ"}) {
		t.Fatalf("removed = %v", set.Removed)
	}
}

func TestChangeSetInsertReplacesContent(t *testing.T) {
	var set ChangeSet
	set.Insert("/p/a.typ", FileOK([]byte("v1")))
	set.Insert("/p/a.typ", FileOK([]byte("v2")))

	if len(set.Inserted) != 1 {
		t.Fatalf("inserted = %v, want one entry", set.InsertedPaths())
	}
	content, err := set.Inserted[0].Result.Content()
	if err != nil || string(content) != "v2" {
		t.Fatalf("content = %q/%v, want v2", content, err)
	}
}

func TestChangeSetMergeIsIdempotent(t *testing.T) {
	var base ChangeSet
	base.Insert("/p/a.typ", FileOK([]byte("a")))
	base.Remove("/p/b.typ")

	var other ChangeSet
	other.Insert("/p/b.typ", FileOK([]byte("b")))
	other.Remove("/p/c.typ")

	merged := base
	merged.Merge(other)
	again := merged
	again.Merge(other)

	if !reflect.DeepEqual(merged.Paths(), again.Paths()) {
		t.Fatalf("second merge changed paths: %v vs %v", merged.Paths(), again.Paths())
	}
	if !reflect.DeepEqual(merged.Paths(), []string{"/p/a.typ", "/p/b.typ", "/p/c.typ"}) {
		t.Fatalf("paths = %v", merged.Paths())
	}
	// b was removed in base and re-inserted by the merge; later wins.
	if got := merged.InsertedPaths(); !reflect.DeepEqual(got, []string{"/p/a.typ", "/p/b.typ"}) {
		t.Fatalf("inserted = %v", got)
	}
	if !reflect.DeepEqual(merged.Removed, []string{"/p/c.typ"}) {
		t.Fatalf("removed = %v", merged.Removed)
	}
}

func TestFileResultDigestDistinguishesErrorKinds(t *testing.T) {
	ok := FileOK([]byte("content"))
	missing := FileErr(ErrNotAFile)

	if ok.Digest() == missing.Digest() {
		t.Fatalf("content and error digests collide")
	}
	if !missing.Same(FileErr(ErrNotAFile)) {
		t.Fatalf("same error kind should compare equal")
	}
	if ok.Same(FileOK([]byte("other"))) {
		t.Fatalf("different content should not compare equal")
	}
}
