// Package stages provides the built-in stage behaviours selected by the
// behavior key of a [[stages]] config entry.
//
//   - passthrough forwards every item unchanged.
//   - exec runs an external command per item; exit 75 (EX_TEMPFAIL) skips.
//   - ledger records each item's digest in SQLite and forwards only the
//     first occurrence of a given content.
package stages
