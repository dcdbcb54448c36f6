package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"quill/internal/compiler"
	"quill/internal/event"
	"quill/internal/fsutil"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/vfs"
	"quill/internal/watcher"
)

const defaultEvictionBudget = 5

var (
	ErrShutdown         = errors.New("scheduler is shut down")
	ErrEntryNotAbsolute = errors.New("entry path is not absolute")
	ErrEntryOutsideRoot = errors.New("entry path is outside the project root")
)

// WatchController is the slice of the watch actor the scheduler drives.
type WatchController interface {
	Subscribe(paths []string)
	Upstream(update watcher.UpstreamUpdate)
	Settle()
}

// Options configures a Scheduler.
type Options struct {
	Root     string
	Entry    string
	Compiler compiler.Compiler
	Watch    WatchController

	Logger   *logging.Logger
	Registry *metrics.Registry
	Bus      *event.Bus[event.Event]

	// EvictionBudget is how many compile generations a cached disk read
	// survives without being touched.
	EvictionBudget int64

	// OnCompiled is called after every compile, failed ones included, so
	// diagnostics can always be published.
	OnCompiled func(*compiler.Document, error)

	// AnnounceExportPath notifies the frontend of the export target implied
	// by a new entry. A failure aborts the entry change.
	AnnounceExportPath func(entry string) error
}

// Scheduler is the scheduling actor. One per project; compiles never
// overlap.
type Scheduler struct {
	state *State
	inbox *event.Queue[Interrupt]
	done  chan struct{}

	watch          WatchController
	logger         *logging.Logger
	registry       *metrics.Registry
	bus            *event.Bus[event.Event]
	evictionBudget int64
	needsCompile   bool

	onCompiled         func(*compiler.Document, error)
	announceExportPath func(entry string) error
}

func NewScheduler(options Options) (*Scheduler, error) {
	if options.Compiler == nil {
		return nil, errors.New("compiler is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	budget := options.EvictionBudget
	if budget <= 0 {
		budget = defaultEvictionBudget
	}

	store := vfs.NewStore(options.Root, logger)
	store.SetEntry(options.Entry)

	scheduler := &Scheduler{
		state: &State{
			store:       store,
			compiler:    options.Compiler,
			shadowPaths: mapset.NewThreadUnsafeSet[string](),
			suspended:   options.Entry == "",
		},
		inbox:              event.NewQueue[Interrupt](),
		done:               make(chan struct{}),
		watch:              options.Watch,
		logger:             logger,
		registry:           registry,
		bus:                options.Bus,
		evictionBudget:     budget,
		onCompiled:         options.OnCompiled,
		announceExportPath: options.AnnounceExportPath,
	}
	go scheduler.run()
	return scheduler, nil
}

// HandleChangeSet is the watch actor's consumer: install it as the
// OnChangeSet callback.
func (s *Scheduler) HandleChangeSet(set vfs.ChangeSet, update *watcher.UpstreamUpdate) {
	if s == nil {
		return
	}
	s.inbox.Push(filesystemInterrupt{set: set, upstream: update})
}

// RequestCompile queues a recompile of the current target.
func (s *Scheduler) RequestCompile() {
	if s == nil {
		return
	}
	s.inbox.Push(compileInterrupt{})
}

// AddMemoryChanges feeds editor buffer changes in. With resync the tracked
// shadow set is replaced wholesale; paths absent from the new set become
// implicit removes.
func (s *Scheduler) AddMemoryChanges(set vfs.ChangeSet, resync bool) {
	if s == nil {
		return
	}
	s.inbox.Push(memoryEditInterrupt{set: set, resync: resync})
}

// Steal runs fn on the scheduling loop with exclusive state access and
// waits for it to finish.
func (s *Scheduler) Steal(fn func(*State)) error {
	if s == nil || fn == nil {
		return ErrShutdown
	}
	done := make(chan struct{})
	if !s.inbox.Push(taskInterrupt{fn: fn, done: done}) {
		return ErrShutdown
	}
	<-done
	return nil
}

// StealAsync submits fn without waiting. The returned channel closes when
// the task has run.
func (s *Scheduler) StealAsync(fn func(*State)) (<-chan struct{}, error) {
	if s == nil || fn == nil {
		return nil, ErrShutdown
	}
	done := make(chan struct{})
	if !s.inbox.Push(taskInterrupt{fn: fn, done: done}) {
		return nil, ErrShutdown
	}
	return done, nil
}

// StealWith runs fn on the loop and returns its result.
func StealWith[T any](s *Scheduler, fn func(*State) T) (T, error) {
	var result T
	err := s.Steal(func(state *State) {
		result = fn(state)
	})
	return result, err
}

// ChangeEntry switches the compile target. The path must be absolute and
// inside the project root; an empty path suspends the project. On failure
// both the entry pointer and any already-sent export-path announcement are
// rolled back.
func (s *Scheduler) ChangeEntry(path string) error {
	var result error
	if err := s.Steal(func(state *State) {
		result = s.changeEntryOnLoop(path)
	}); err != nil {
		return err
	}
	return result
}

// Settle submits a shutdown and blocks until the loop has acknowledged it
// and exited. Used for graceful teardown and deterministic tests.
func (s *Scheduler) Settle() {
	if s == nil {
		return
	}
	ack := make(chan struct{})
	if s.inbox.Push(shutdownInterrupt{ack: ack}) {
		<-ack
	}
	s.inbox.Close()
	<-s.done
}

// Done closes when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		interrupt, ok := s.inbox.Pop()
		if !ok {
			s.logger.Info("scheduler inbox closed, loop exiting", nil)
			return
		}
		if s.processBatch(interrupt) {
			return
		}
	}
}

// processBatch handles one interrupt plus everything already queued behind
// it, without blocking, so bursts collapse into a single compile at the
// end. A task that arrives while a compile is owed waits for that compile.
func (s *Scheduler) processBatch(interrupt Interrupt) (exit bool) {
	for {
		s.state.logicalTick++

		switch typed := interrupt.(type) {
		case compileInterrupt:
			s.needsCompile = true
		case taskInterrupt:
			if s.needsCompile {
				s.compile()
			}
			before := s.state.store.Revision()
			typed.fn(s.state)
			if s.state.store.Revision() != before {
				s.needsCompile = true
			}
			close(typed.done)
		case memoryEditInterrupt:
			s.handleMemoryEdit(typed)
		case filesystemInterrupt:
			s.handleFilesystem(typed)
		case shutdownInterrupt:
			if s.watch != nil {
				s.watch.Settle()
			}
			close(typed.ack)
			return true
		}

		next, ok := s.inbox.TryPop()
		if !ok {
			break
		}
		interrupt = next
	}

	if s.needsCompile {
		s.compile()
	}
	return false
}

func (s *Scheduler) handleMemoryEdit(edit memoryEditInterrupt) {
	set := edit.set
	if edit.resync {
		kept := mapset.NewThreadUnsafeSet[string]()
		for _, insert := range set.Inserted {
			kept.Add(insert.Path)
		}
		for _, tracked := range s.state.shadowPaths.ToSlice() {
			if !kept.Contains(tracked) {
				set.Remove(tracked)
			}
		}
	}

	// Unmapping hands paths back to disk, so the watch actor has to
	// re-read them before the edit lands; the same goes for any edit
	// arriving while such a round-trip is already in flight.
	if s.state.dirtySinceTick != 0 || len(set.Removed) > 0 {
		s.state.dirtySinceTick = s.state.logicalTick
		if s.watch != nil {
			s.watch.Upstream(watcher.UpstreamUpdate{
				Tick:   s.state.logicalTick,
				Edit:   set,
				Resync: edit.resync,
			})
			return
		}
		// No watch actor: nothing will echo the update back, apply in
		// place to avoid losing the edit.
		s.state.dirtySinceTick = 0
	}

	if s.applyMemoryEdit(set) {
		s.needsCompile = true
	}
}

func (s *Scheduler) applyMemoryEdit(set vfs.ChangeSet) bool {
	changed := s.state.store.ReviseWithEffects(func(store *vfs.Store) {
		for _, insert := range set.Inserted {
			store.MapShadow(insert.Path, insert.Result)
		}
		for _, removed := range set.Removed {
			store.UnmapShadow(removed)
		}
	})
	for _, insert := range set.Inserted {
		s.state.shadowPaths.Add(insert.Path)
	}
	for _, removed := range set.Removed {
		s.state.shadowPaths.Remove(removed)
	}
	if s.bus != nil && !set.IsEmpty() {
		s.bus.Publish(event.NewChangeEvent("memory", set.InsertedPaths(), set.Removed))
	}
	return changed
}

func (s *Scheduler) handleFilesystem(interrupt filesystemInterrupt) {
	changed := s.state.store.ReviseWithEffects(func(store *vfs.Store) {
		store.ApplyChangeSet(interrupt.set)
	})
	if s.bus != nil && !interrupt.set.IsEmpty() {
		s.bus.Publish(event.NewChangeEvent("filesystem", interrupt.set.InsertedPaths(), interrupt.set.Removed))
	}

	if update := interrupt.upstream; update != nil {
		if s.applyMemoryEdit(update.Edit) {
			changed = true
		}
		if update.Tick == s.state.dirtySinceTick {
			s.state.dirtySinceTick = 0
		}
	}

	if changed {
		s.needsCompile = true
	}
}

// compile runs one compile pass to completion on the loop. While suspended
// it only records that work is owed.
func (s *Scheduler) compile() {
	s.needsCompile = false
	if s.state.suspended {
		s.state.dirty = true
		return
	}
	s.state.dirty = false

	world := s.state.store.Snapshot(nil)
	s.registry.IncCompileStarted()
	start := time.Now()
	document, err := s.state.compiler.Compile(world)
	elapsed := time.Since(start)
	s.registry.RecordCompile(elapsed, err)

	s.state.latestDocument = document
	s.state.latestError = err
	if err == nil {
		s.state.latestSuccessfulDocument = document
		s.logger.Debug("compile finished", map[string]string{
			"revision": strconv.FormatInt(world.Revision(), 10),
			"elapsed":  elapsed.String(),
		})
	} else {
		s.logger.Warn("compile failed", map[string]string{
			"revision": strconv.FormatInt(world.Revision(), 10),
			"error":    err.Error(),
		})
	}

	if s.onCompiled != nil {
		s.onCompiled(document, err)
	}
	if s.bus != nil {
		diagnostic := ""
		if err != nil {
			diagnostic = err.Error()
		}
		s.bus.Publish(event.NewCompileEvent(world.Revision(), err == nil, diagnostic, elapsed))
	}

	if s.watch != nil {
		var dependencies []string
		s.state.compiler.IterDependencies(world, func(path string) {
			dependencies = append(dependencies, path)
		})
		s.watch.Subscribe(dependencies)
	}

	s.state.store.EvictReadCache(s.evictionBudget)
}

func (s *Scheduler) changeEntryOnLoop(path string) error {
	if path != "" {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("entry %q: %w", path, ErrEntryNotAbsolute)
		}
		if !fsutil.WithinRoot(s.state.store.Root(), path) {
			return fmt.Errorf("entry %q: %w", path, ErrEntryOutsideRoot)
		}
	}

	previous := s.state.store.Entry()
	if previous == path {
		return nil
	}

	announced := false
	if s.announceExportPath != nil {
		if err := s.announceExportPath(path); err != nil {
			return fmt.Errorf("announce export path: %w", err)
		}
		announced = true
	}

	changed := s.state.store.ReviseWithEffects(func(store *vfs.Store) {
		store.SetEntry(path)
	})

	if err := s.validateEntry(path); err != nil {
		s.state.store.ReviseWithEffects(func(store *vfs.Store) {
			store.SetEntry(previous)
		})
		if announced {
			_ = s.announceExportPath(previous)
		}
		return err
	}

	wasSuspended := s.state.suspended
	s.state.suspended = path == ""
	if !s.state.suspended && (changed || (wasSuspended && s.state.dirty)) {
		s.needsCompile = true
	}
	s.logger.Info("entry changed", map[string]string{
		"entry": path,
	})
	return nil
}

// validateEntry confirms the new target is actually readable before the
// change is committed.
func (s *Scheduler) validateEntry(path string) error {
	if path == "" {
		return nil
	}
	world := s.state.store.Snapshot(nil)
	if _, err := world.File(path); err != nil {
		return fmt.Errorf("entry %q: %w", path, err)
	}
	return nil
}
