package compiler

import (
	"path/filepath"
	"strings"

	"quill/internal/vfs"
)

const maxScanFiles = 4096

// ScanCompiler is a lightweight stand-in for the real pipeline: it follows
// include and import directives breadth-first from the entry, collects an
// outline from heading markers, and reports unreadable files as
// diagnostics. Every file it touches counts as a dependency, so the watch
// feedback loop behaves exactly as it would with the full compiler.
type ScanCompiler struct{}

func NewScanCompiler() *ScanCompiler {
	return &ScanCompiler{}
}

func (c *ScanCompiler) Compile(world *vfs.World) (*Document, error) {
	if world.Entry() == "" {
		return nil, Diagnostics{{
			Path:     "",
			Severity: severityOrDefault(""),
			Message:  "no entry file configured",
		}}
	}

	document := &Document{
		Entry:    world.Entry(),
		Revision: world.Revision(),
	}
	var diagnostics Diagnostics

	c.walk(world, func(path string, content []byte, readErr error) {
		if readErr != nil {
			diagnostics = append(diagnostics, Diagnostic{
				Path:     path,
				Severity: severityOrDefault(""),
				Message:  readErr.Error(),
			})
			return
		}
		for lineIndex, line := range strings.Split(string(content), "\n") {
			document.Words += len(strings.Fields(line))
			level := headingLevel(line)
			if level == 0 {
				continue
			}
			document.Outline = append(document.Outline, OutlineItem{
				Path:  path,
				Line:  lineIndex + 1,
				Level: level,
				Title: strings.TrimSpace(line[level:]),
			})
		}
	})

	if len(diagnostics) > 0 {
		return nil, diagnostics
	}
	return document, nil
}

func (c *ScanCompiler) IterDependencies(world *vfs.World, visit func(path string)) {
	if world.Entry() == "" {
		return
	}
	c.walk(world, func(path string, _ []byte, _ error) {
		visit(path)
	})
}

// walk visits the entry and everything transitively included, breadth-first,
// each file once. Files that fail to read are still visited so their
// creation or repair is noticed.
func (c *ScanCompiler) walk(world *vfs.World, visit func(path string, content []byte, readErr error)) {
	queue := []string{world.Entry()}
	seen := map[string]struct{}{world.Entry(): {}}

	for len(queue) > 0 && len(seen) <= maxScanFiles {
		path := queue[0]
		queue = queue[1:]

		content, err := world.File(path)
		visit(path, content, err)
		if err != nil {
			continue
		}

		for _, target := range includeTargets(path, content) {
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			queue = append(queue, target)
		}
	}
}

// includeTargets extracts `#include "…"` and `#import "…"` targets from one
// file, resolved against the file's directory. Package imports (specs not
// ending in a source suffix) are skipped; the registry handles those.
func includeTargets(from string, content []byte) []string {
	var targets []string
	base := filepath.Dir(from)
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		var rest string
		switch {
		case strings.HasPrefix(trimmed, "#include "):
			rest = trimmed[len("#include "):]
		case strings.HasPrefix(trimmed, "#import "):
			rest = trimmed[len("#import "):]
		default:
			continue
		}
		target, ok := quotedPrefix(rest)
		if !ok || !strings.HasSuffix(target, ".typ") {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(base, target)
		}
		targets = append(targets, filepath.Clean(target))
	}
	return targets
}

func quotedPrefix(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < 2 || value[0] != '"' {
		return "", false
	}
	end := strings.IndexByte(value[1:], '"')
	if end < 0 {
		return "", false
	}
	return value[1 : 1+end], true
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '=' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}
