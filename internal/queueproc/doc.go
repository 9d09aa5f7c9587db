// Package queueproc drains a directory queue with bounded parallelism.
//
// A Processor owns one pipeline stage. Run takes the stage lock (an exclusive
// directory), feeds the queue's files oldest first through a dispatcher sized
// to the current backlog, and releases the lock when the cycle ends. Every
// 100 items the processor pauses until in-flight work drains, rewrites the
// speed file, checks the halt file, and starts the downstream stage when it
// is idle.
//
// The Stage decides each item's outcome. Processed items may hand a file to
// the downstream queue and are then removed; skipped items stay for a later
// cycle; failed items are renamed to name.ERROR.yyyyMMddHHmmss and never
// scanned again. Filesystem or transaction failures abort the cycle and are
// returned from Run.
package queueproc
