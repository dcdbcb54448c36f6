// Package watcher turns raw OS filesystem notifications into a reliable,
// deduplicated change stream. A single cooperative loop owns the
// watched-path table, classifies every observation against a content cache,
// and holds back suspicious states (empty or missing files) behind a short
// stabilization window so save artifacts never reach the compiler.
package watcher
