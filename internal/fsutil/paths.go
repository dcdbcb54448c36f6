package fsutil

import (
	"path/filepath"
	"strings"
)

// WithinRoot reports whether path equals root or lies inside it. An empty
// root admits everything.
func WithinRoot(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// NormalizeEntry makes an entry path absolute against the root and cleans
// it. Already-absolute paths are cleaned only.
func NormalizeEntry(root, path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) && root != "" {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}
