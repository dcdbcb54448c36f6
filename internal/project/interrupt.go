package project

import (
	"quill/internal/vfs"
	"quill/internal/watcher"
)

// Interrupt is one item of the scheduling loop's inbox. Interrupts are
// processed in strict arrival order, except that a queued compile always
// runs before a queued task within the same batch.
type Interrupt interface {
	isInterrupt()
}

// compileInterrupt asks for a recompile without changing any state.
type compileInterrupt struct{}

// taskInterrupt runs a closure with exclusive access to the actor state.
// This is the only external entry point for reads and writes outside the
// loop.
type taskInterrupt struct {
	fn   func(*State)
	done chan struct{}
}

// memoryEditInterrupt carries editor buffer changes. With resync set the
// tracked shadow set is replaced wholesale.
type memoryEditInterrupt struct {
	set    vfs.ChangeSet
	resync bool
}

// filesystemInterrupt carries a watcher change-set, possibly with a
// deferred memory edit to replay.
type filesystemInterrupt struct {
	set      vfs.ChangeSet
	upstream *watcher.UpstreamUpdate
}

// shutdownInterrupt stops the loop after stopping the watch actor.
type shutdownInterrupt struct {
	ack chan struct{}
}

func (compileInterrupt) isInterrupt()    {}
func (taskInterrupt) isInterrupt()       {}
func (memoryEditInterrupt) isInterrupt() {}
func (filesystemInterrupt) isInterrupt() {}
func (shutdownInterrupt) isInterrupt()   {}
