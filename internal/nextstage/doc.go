// Package nextstage launches the downstream stage of a pipeline.
//
// A Launcher first checks that the downstream stage is idle (its lock
// directory is absent) and then starts its command line detached, never
// waiting for it. Implementations are registered by name so the
// next_stage.launcher setting selects one at startup.
package nextstage
