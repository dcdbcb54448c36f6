// Package project hosts the scheduling loop at the heart of the daemon: a
// single-threaded actor that owns the snapshot store and the compiler,
// serializes every mutation (editor edits, filesystem change-sets, ad-hoc
// tasks, shutdown) through one interrupt queue, batches bursts, and decides
// when to recompile. Nothing outside the loop ever touches the store;
// readers take immutable World snapshots or submit tasks.
package project
