// Package dispatch runs a bounded pool of workers over a fixed-capacity ring
// of submitted items.
//
// A single producer publishes items with Submit (or SubmitAll/SubmitChunked);
// competing workers consume them in publish order and each item is handled by
// exactly one worker. The producer blocks while every slot is outstanding, so
// memory stays bounded no matter how many items are fed. Handler errors and
// panics are routed to a FaultHandler and never stop a worker.
//
// WaitUntilDrained lets the producer pause between chunks until all published
// items have completed; Shutdown drains and then stops the workers.
package dispatch
