package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry collects process-local counters for the project daemon.
type Registry struct {
	compileStarted   atomic.Int64
	compileSucceeded atomic.Int64
	compileFailed    atomic.Int64
	compileNanos     atomic.Int64
	changeSets       atomic.Int64
	rechecksArmed    atomic.Int64
	rechecksFired    atomic.Int64
	rechecksStale    atomic.Int64
	activeWatches    atomic.Int64
	buses            sync.Map
}

type busStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncCompileStarted() {
	if r == nil {
		return
	}
	r.compileStarted.Add(1)
}

func (r *Registry) RecordCompile(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.compileNanos.Add(duration.Nanoseconds())
	if err != nil {
		r.compileFailed.Add(1)
		return
	}
	r.compileSucceeded.Add(1)
}

func (r *Registry) IncChangeSet() {
	if r == nil {
		return
	}
	r.changeSets.Add(1)
}

func (r *Registry) IncRecheckArmed() {
	if r == nil {
		return
	}
	r.rechecksArmed.Add(1)
}

func (r *Registry) IncRecheckFired(stale bool) {
	if r == nil {
		return
	}
	if stale {
		r.rechecksStale.Add(1)
		return
	}
	r.rechecksFired.Add(1)
}

func (r *Registry) SetActiveWatches(count int) {
	if r == nil {
		return
	}
	r.activeWatches.Store(int64(count))
}

func (r *Registry) IncEventPublished(bus string) {
	stats := r.stats(bus)
	if stats == nil {
		return
	}
	stats.published.Add(1)
}

func (r *Registry) IncEventDropped(bus string) {
	stats := r.stats(bus)
	if stats == nil {
		return
	}
	stats.dropped.Add(1)
}

func (r *Registry) stats(bus string) *busStats {
	if r == nil {
		return nil
	}
	if bus == "" {
		bus = "unknown"
	}
	if existing, ok := r.buses.Load(bus); ok {
		return existing.(*busStats)
	}
	created, _ := r.buses.LoadOrStore(bus, &busStats{})
	return created.(*busStats)
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	write := func(name string, value int64) error {
		_, err := fmt.Fprintf(writer, "%s %d\n", name, value)
		return err
	}

	if err := write("quill_compile_started_total", r.compileStarted.Load()); err != nil {
		return err
	}
	if err := write("quill_compile_succeeded_total", r.compileSucceeded.Load()); err != nil {
		return err
	}
	if err := write("quill_compile_failed_total", r.compileFailed.Load()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "quill_compile_seconds_total %.6f\n", time.Duration(r.compileNanos.Load()).Seconds()); err != nil {
		return err
	}
	if err := write("quill_change_sets_total", r.changeSets.Load()); err != nil {
		return err
	}
	if err := write("quill_rechecks_armed_total", r.rechecksArmed.Load()); err != nil {
		return err
	}
	if err := write("quill_rechecks_fired_total", r.rechecksFired.Load()); err != nil {
		return err
	}
	if err := write("quill_rechecks_stale_total", r.rechecksStale.Load()); err != nil {
		return err
	}
	if err := write("quill_active_watches", r.activeWatches.Load()); err != nil {
		return err
	}

	names := make([]string, 0)
	r.buses.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		stats := r.stats(name)
		if _, err := fmt.Fprintf(writer, "quill_events_published_total{bus=%q} %d\n", name, stats.published.Load()); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(writer, "quill_events_dropped_total{bus=%q} %d\n", name, stats.dropped.Load()); err != nil {
			return err
		}
	}
	return nil
}
