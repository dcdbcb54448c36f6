package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// CompileEvent reports the outcome of one compile pass.
type CompileEvent struct {
	EventType  string
	Revision   int64
	Succeeded  bool
	Diagnostic string
	Duration   time.Duration
	OccurredAt time.Time
}

func NewCompileEvent(revision int64, succeeded bool, diagnostic string, duration time.Duration) CompileEvent {
	return CompileEvent{
		EventType:  "compile_finished",
		Revision:   revision,
		Succeeded:  succeeded,
		Diagnostic: diagnostic,
		Duration:   duration,
		OccurredAt: time.Now().UTC(),
	}
}

func (e CompileEvent) Type() string {
	return e.EventType
}

func (e CompileEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// ChangeEvent summarizes one applied change-set.
type ChangeEvent struct {
	EventType  string
	Source     string
	Inserted   []string
	Removed    []string
	OccurredAt time.Time
}

func NewChangeEvent(source string, inserted, removed []string) ChangeEvent {
	return ChangeEvent{
		EventType:  "files_changed",
		Source:     source,
		Inserted:   inserted,
		Removed:    removed,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ChangeEvent) Type() string {
	return e.EventType
}

func (e ChangeEvent) Timestamp() time.Time {
	return e.OccurredAt
}
