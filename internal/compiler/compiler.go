// Package compiler defines the boundary to the language's compile pipeline.
// The scheduling loop only ever sees these interfaces; the real
// parser/type-checker lives outside this repo.
package compiler

import (
	"fmt"
	"strings"

	"quill/internal/vfs"
)

// Document is the product of one successful compile.
type Document struct {
	Entry    string
	Revision int64
	Outline  []OutlineItem
	Words    int
}

// OutlineItem is one heading of the compiled document.
type OutlineItem struct {
	Path  string
	Line  int
	Level int
	Title string
}

// Diagnostic is one compiler message tied to a source location.
type Diagnostic struct {
	Path     string
	Line     int
	Severity string
	Message  string
}

// Diagnostics is the error a failed compile resolves to.
type Diagnostics []Diagnostic

func (d Diagnostics) Error() string {
	if len(d) == 0 {
		return "compile failed"
	}
	first := d[0]
	if len(d) == 1 {
		return fmt.Sprintf("%s:%d: %s", first.Path, first.Line, first.Message)
	}
	return fmt.Sprintf("%s:%d: %s (and %d more)", first.Path, first.Line, first.Message, len(d)-1)
}

// Compiler turns one immutable World into a Document or diagnostics.
type Compiler interface {
	Compile(world *vfs.World) (*Document, error)

	// IterDependencies visits every file the given World's compile reads,
	// including files whose read failed. The visit order is deterministic.
	IterDependencies(world *vfs.World, visit func(path string))
}

func severityOrDefault(severity string) string {
	if strings.TrimSpace(severity) == "" {
		return "error"
	}
	return severity
}
