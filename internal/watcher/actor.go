package watcher

import (
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"quill/internal/event"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/vfs"
)

// Actor owns the watched-path table and the OS watch backend. All table
// mutation happens on its own loop; the outside world talks to it through
// Subscribe, Upstream and Settle.
type Actor struct {
	backend  osWatcher
	inbox    *event.Queue[request]
	paths    map[string]*watchedPath
	rechecks []pendingRecheck

	round int
	tick  uint64

	recheckDelay   time.Duration
	lifetimeRounds int

	onChangeSet func(vfs.ChangeSet, *UpstreamUpdate)
	logger      *logging.Logger
	registry    *metrics.Registry
}

type request interface {
	isRequest()
}

type subscribeRequest struct {
	paths []string
}

type upstreamRequest struct {
	update UpstreamUpdate
}

type settleRequest struct {
	done chan struct{}
}

func (subscribeRequest) isRequest() {}
func (upstreamRequest) isRequest()  {}
func (settleRequest) isRequest()    {}

// New starts a watch actor over the real fsnotify backend.
func New(options Options) (*Actor, error) {
	backend, err := newFsnotifyBackend()
	if err != nil {
		return nil, err
	}
	return newWithBackend(backend, options), nil
}

func newWithBackend(backend osWatcher, options Options) *Actor {
	delay := options.RecheckDelay
	if delay <= 0 {
		delay = defaultRecheckDelay
	}
	lifetime := options.LifetimeRounds
	if lifetime <= 0 {
		lifetime = defaultLifetimeRounds
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	actor := &Actor{
		backend:        backend,
		inbox:          event.NewQueue[request](),
		paths:          make(map[string]*watchedPath),
		recheckDelay:   delay,
		lifetimeRounds: lifetime,
		onChangeSet:    options.OnChangeSet,
		logger:         logger,
		registry:       registry,
	}
	go actor.run()
	return actor
}

// Subscribe replaces the interest set with the given paths. Missing OS
// watches are installed and every path is reclassified, so edits that
// happened between calls are still caught. Paths absent from the set age
// out over the lifetime window rather than being unwatched immediately.
func (a *Actor) Subscribe(paths []string) {
	if a == nil {
		return
	}
	copied := make([]string, len(paths))
	copy(copied, paths)
	a.inbox.Push(subscribeRequest{paths: copied})
}

// Upstream requests disk re-validation for the update's fallback paths and
// echoes the update back through the change stream once that is done.
func (a *Actor) Upstream(update UpstreamUpdate) {
	if a == nil {
		return
	}
	a.inbox.Push(upstreamRequest{update: update})
}

// Settle drains pending work and stops the loop. It blocks until the actor
// has exited.
func (a *Actor) Settle() {
	if a == nil {
		return
	}
	done := make(chan struct{})
	if !a.inbox.Push(settleRequest{done: done}) {
		return
	}
	<-done
}

// run is the cooperative loop: one source handled per iteration, classifier
// always run before yielding.
func (a *Actor) run() {
	defer a.backend.Close()

	for {
		var timerCh <-chan time.Time
		if due, ok := a.earliestRecheck(); ok {
			wait := time.Until(due)
			if wait < 0 {
				wait = 0
			}
			timerCh = time.After(wait)
		}

		select {
		case <-a.inbox.Ready():
			req, ok := a.inbox.TryPop()
			if !ok {
				if a.inbox.Closed() {
					a.logger.Info("watch inbox closed, loop exiting", nil)
					return
				}
				continue
			}
			a.tick++
			if a.handleRequest(req) {
				return
			}
			a.inbox.Kick()
		case osEvent, ok := <-a.backend.Events():
			if !ok {
				a.logger.Warn("os event stream closed, loop exiting", nil)
				return
			}
			a.tick++
			a.handleOSEvent(osEvent)
		case err, ok := <-a.backend.Errors():
			if !ok {
				a.logger.Warn("os error stream closed, loop exiting", nil)
				return
			}
			a.logger.Warn("os watch error", map[string]string{
				"error": err.Error(),
			})
		case <-timerCh:
			a.tick++
			a.fireDueRechecks()
		}
	}
}

func (a *Actor) handleRequest(req request) (exit bool) {
	switch typed := req.(type) {
	case subscribeRequest:
		a.handleSubscribe(typed.paths)
	case upstreamRequest:
		a.handleUpstream(typed.update)
	case settleRequest:
		a.drain()
		close(typed.done)
		return true
	}
	return false
}

// drain consumes whatever is still queued so a Settle observes every
// request sent before it.
func (a *Actor) drain() {
	for {
		req, ok := a.inbox.TryPop()
		if !ok {
			return
		}
		if settle, isSettle := req.(settleRequest); isSettle {
			close(settle.done)
			continue
		}
		a.tick++
		a.handleRequest(req)
	}
}

func (a *Actor) handleSubscribe(paths []string) {
	a.round++
	var set vfs.ChangeSet

	for _, entry := range a.paths {
		entry.seen = false
	}

	for _, path := range paths {
		entry := a.paths[path]
		if entry == nil {
			entry = &watchedPath{}
			a.paths[path] = entry
		}
		entry.seen = true
		entry.lifetime = a.round
		if !entry.isWatched {
			if err := a.backend.Add(path); err != nil {
				a.logger.Warn("watch add failed", map[string]string{
					"path":  path,
					"error": err.Error(),
				})
			} else {
				entry.isWatched = true
			}
		}
		a.classifyInto(&set, path, entry)
	}

	for path, entry := range a.paths {
		if entry.seen || a.round-entry.lifetime < a.lifetimeRounds {
			continue
		}
		if entry.isWatched {
			if err := a.backend.Remove(path); err != nil {
				a.logger.Warn("watch remove failed", map[string]string{
					"path":  path,
					"error": err.Error(),
				})
			}
		}
		delete(a.paths, path)
		set.Remove(path)
	}

	a.registry.SetActiveWatches(len(a.paths))
	a.emit(set, nil)
}

// handleUpstream re-reads the paths the deferred edit released back to disk
// and tags the resulting change-set with the update so the consumer can
// replay the edit in order.
func (a *Actor) handleUpstream(update UpstreamUpdate) {
	var set vfs.ChangeSet
	for _, path := range update.Edit.Removed {
		obs := observe(path)
		kind := vfs.ErrKindOf(obs.result.Err())
		switch kind {
		case vfs.ErrKindNone:
			set.Insert(path, obs.result)
		case vfs.ErrKindNotFound:
			set.Remove(path)
		default:
			set.Insert(path, obs.result)
		}
		if entry := a.paths[path]; entry != nil {
			cacheObservation(entry, obs)
		}
	}
	a.emitAlways(set, &update)
}

func (a *Actor) handleOSEvent(osEvent fsnotify.Event) {
	path := osEvent.Name
	entry := a.paths[path]
	if entry == nil {
		return
	}

	// Some backends silently drop the watch on rename; unwatch proactively
	// and let the next subscribe reinstate it.
	if osEvent.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && entry.isWatched {
		if err := a.backend.Remove(path); err != nil {
			a.logger.Debug("proactive unwatch failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
		entry.isWatched = false
	}

	var set vfs.ChangeSet
	a.classifyInto(&set, path, entry)
	a.emit(set, nil)
}

// classifyInto observes the path, runs the classifier and applies the
// transition, collecting any emission into the change-set. The stat happens
// first: a stable path whose size and mtime match the cache is dismissed
// without reading its content.
func (a *Actor) classifyInto(set *vfs.ChangeSet, path string, entry *watchedPath) {
	var obs observation
	info, err := os.Stat(path)
	if err != nil {
		obs = observation{result: vfs.FileErr(err)}
	} else {
		if entry.state == stateStable && info.Mode().IsRegular() &&
			statMatches(entry, info.Size(), info.ModTime()) {
			return
		}
		obs = observeInfo(path, info)
	}

	switch classify(entry, obs) {
	case actionDrop:
		return
	case actionEmit:
		entry.state = stateStable
		cacheObservation(entry, obs)
		set.Insert(path, obs.result)
	case actionDefer:
		entry.state = statePending
		entry.pendingPayload = obs.result
		entry.pendingTick = a.tick
		a.scheduleRecheck(path, a.tick)
	}
}

// scheduleRecheck arms the stabilization timer for a path. Re-arming moves
// the existing entry instead of queueing a second one, so a burst of events
// on one path holds a single recheck.
func (a *Actor) scheduleRecheck(path string, tick uint64) {
	due := time.Now().Add(a.recheckDelay)
	for i := range a.rechecks {
		if a.rechecks[i].path == path {
			a.rechecks[i].due = due
			a.rechecks[i].tick = tick
			return
		}
	}
	a.rechecks = append(a.rechecks, pendingRecheck{
		due:  due,
		tick: tick,
		path: path,
	})
	a.registry.IncRecheckArmed()
}

func (a *Actor) earliestRecheck() (time.Time, bool) {
	if len(a.rechecks) == 0 {
		return time.Time{}, false
	}
	earliest := a.rechecks[0].due
	for _, recheck := range a.rechecks[1:] {
		if recheck.due.Before(earliest) {
			earliest = recheck.due
		}
	}
	return earliest, true
}

// fireDueRechecks resolves every recheck whose window has elapsed. A
// recheck emits its pending payload only if no newer observation superseded
// it; the loop re-arms automatically for the rest with the residual delay.
func (a *Actor) fireDueRechecks() {
	now := time.Now()
	var set vfs.ChangeSet
	remaining := a.rechecks[:0]

	for _, recheck := range a.rechecks {
		if recheck.due.After(now) {
			remaining = append(remaining, recheck)
			continue
		}
		entry := a.paths[recheck.path]
		if entry == nil || entry.state != statePending || entry.pendingTick != recheck.tick {
			a.registry.IncRecheckFired(true)
			continue
		}

		payload := entry.pendingPayload
		entry.state = stateStable
		entry.pendingPayload = vfs.FileResult{}
		cacheResult(entry, payload)
		if vfs.ErrKindOf(payload.Err()) == vfs.ErrKindNotFound {
			set.Remove(recheck.path)
		} else {
			set.Insert(recheck.path, payload)
		}
		a.registry.IncRecheckFired(false)
	}

	a.rechecks = remaining
	a.emit(set, nil)
}

func (a *Actor) emit(set vfs.ChangeSet, update *UpstreamUpdate) {
	if set.IsEmpty() && update == nil {
		return
	}
	a.emitAlways(set, update)
}

func (a *Actor) emitAlways(set vfs.ChangeSet, update *UpstreamUpdate) {
	a.registry.IncChangeSet()
	if a.logger.Enabled(logging.LevelDebug) {
		a.logger.Debug("change-set emitted", map[string]string{
			"inserted": strconv.Itoa(len(set.Inserted)),
			"removed":  strconv.Itoa(len(set.Removed)),
			"upstream": strconv.FormatBool(update != nil),
		})
	}
	if a.onChangeSet != nil {
		a.onChangeSet(set, update)
	}
}

func cacheObservation(entry *watchedPath, obs observation) {
	cacheResult(entry, obs.result)
	entry.size = obs.size
	entry.modTime = obs.modTime
}

func cacheResult(entry *watchedPath, result vfs.FileResult) {
	entry.hasCache = true
	entry.errKind = vfs.ErrKindOf(result.Err())
	if entry.errKind == vfs.ErrKindNone {
		entry.digest = result.Digest()
	} else {
		entry.digest = 0
	}
}
