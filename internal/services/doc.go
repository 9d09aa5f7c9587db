// Package services defines shared utilities consumed by stage behaviours and
// the queue processor.
//
// Key responsibilities:
//   - Context helpers that stamp item names, stage names, worker indices, and
//     cycle identifiers for logging.
//   - Structured error markers plus the Wrap helper so item failures carry a
//     consistent classification into logs and error notifications.
package services
