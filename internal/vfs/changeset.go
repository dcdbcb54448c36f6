package vfs

import "sort"

// FileInsert pairs a path with its freshly observed read result.
type FileInsert struct {
	Path   string
	Result FileResult
}

// ChangeSet is a coalesced batch of path insertions and removals coming out
// of one filesystem or memory update.
type ChangeSet struct {
	Inserted []FileInsert
	Removed  []string
}

func (s ChangeSet) IsEmpty() bool {
	return len(s.Inserted) == 0 && len(s.Removed) == 0
}

// Insert records new content for a path. An insert always wins over a prior
// remove of the same path within the batch.
func (s *ChangeSet) Insert(path string, result FileResult) {
	for i := range s.Inserted {
		if s.Inserted[i].Path == path {
			s.Inserted[i].Result = result
			return
		}
	}
	s.Removed = deletePath(s.Removed, path)
	s.Inserted = append(s.Inserted, FileInsert{Path: path, Result: result})
}

// Remove records a removal for a path, superseding a prior insert.
func (s *ChangeSet) Remove(path string) {
	s.Inserted = deleteInsert(s.Inserted, path)
	for _, existing := range s.Removed {
		if existing == path {
			return
		}
	}
	s.Removed = append(s.Removed, path)
}

// Merge folds another change-set into this one, later entries winning.
func (s *ChangeSet) Merge(other ChangeSet) {
	for _, removed := range other.Removed {
		s.Remove(removed)
	}
	for _, insert := range other.Inserted {
		s.Insert(insert.Path, insert.Result)
	}
}

// Paths lists every path the change-set touches, sorted.
func (s ChangeSet) Paths() []string {
	if s.IsEmpty() {
		return nil
	}
	paths := make([]string, 0, len(s.Inserted)+len(s.Removed))
	for _, insert := range s.Inserted {
		paths = append(paths, insert.Path)
	}
	paths = append(paths, s.Removed...)
	sort.Strings(paths)
	return paths
}

// InsertedPaths lists inserted paths in batch order.
func (s ChangeSet) InsertedPaths() []string {
	if len(s.Inserted) == 0 {
		return nil
	}
	paths := make([]string, 0, len(s.Inserted))
	for _, insert := range s.Inserted {
		paths = append(paths, insert.Path)
	}
	return paths
}

func deletePath(paths []string, path string) []string {
	for i, existing := range paths {
		if existing == path {
			return append(paths[:i], paths[i+1:]...)
		}
	}
	return paths
}

func deleteInsert(inserts []FileInsert, path string) []FileInsert {
	for i, existing := range inserts {
		if existing.Path == path {
			return append(inserts[:i], inserts[i+1:]...)
		}
	}
	return inserts
}
