// Package ledger persists a record of items consumed by transactional stages.
//
// Each item is handled inside its own SQLite transaction; the ledger stage
// behaviour records the item's name, size, and SHA-256 digest so the same
// content is forwarded downstream only once per stage.
package ledger
