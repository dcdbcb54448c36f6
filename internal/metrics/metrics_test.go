package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegistryWritePrometheus(t *testing.T) {
	registry := &Registry{}
	registry.IncCompileStarted()
	registry.IncCompileStarted()
	registry.RecordCompile(120*time.Millisecond, nil)
	registry.RecordCompile(30*time.Millisecond, errors.New("boom"))
	registry.IncChangeSet()
	registry.IncRecheckArmed()
	registry.IncRecheckFired(false)
	registry.IncRecheckFired(true)
	registry.SetActiveWatches(4)
	registry.IncEventPublished("events")
	registry.IncEventDropped("events")

	var sink strings.Builder
	if err := registry.WritePrometheus(&sink); err != nil {
		t.Fatalf("write: %v", err)
	}
	output := sink.String()

	for _, line := range []string{
		"quill_compile_started_total 2",
		"quill_compile_succeeded_total 1",
		"quill_compile_failed_total 1",
		"quill_compile_seconds_total 0.150000",
		"quill_change_sets_total 1",
		"quill_rechecks_armed_total 1",
		"quill_rechecks_fired_total 1",
		"quill_rechecks_stale_total 1",
		"quill_active_watches 4",
		`quill_events_published_total{bus="events"} 1`,
		`quill_events_dropped_total{bus="events"} 1`,
	} {
		if !strings.Contains(output, line) {
			t.Fatalf("output missing %q:\n%s", line, output)
		}
	}
}

func TestNilRegistryIsInert(t *testing.T) {
	var registry *Registry
	registry.IncCompileStarted()
	registry.RecordCompile(time.Second, nil)
	registry.IncEventPublished("x")
	if err := registry.WritePrometheus(&strings.Builder{}); err != nil {
		t.Fatalf("nil registry write: %v", err)
	}
}
