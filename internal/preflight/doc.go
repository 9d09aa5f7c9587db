// Package preflight provides readiness checks for the filesystem layout,
// external programs, and notification endpoints relay depends on.
//
// These checks run in two contexts:
//   - "relay check" runs RunAll and CheckCommands and exits non-zero when a
//     required check fails.
//   - "relay status" uses ProbeStage to display each stage's queue, lock,
//     and throughput state.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
