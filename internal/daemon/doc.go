// Package daemon runs every configured stage from one long-lived process.
//
// Each stage gets a lane: a goroutine that drains the stage queue whenever it
// is woken. Lanes are woken by fsnotify events on their queue directories and
// by a fallback poll, so files dropped in by other processes are picked up
// promptly even on filesystems without inotify. A flock on the log directory
// keeps a second watcher from starting.
//
// The per-stage directory lock still applies: a lane whose stage is already
// being run by a "relay run" process simply finds the lock taken and waits
// for its next wake.
package daemon
