// Package notifications delivers system error reports via pluggable notifiers.
//
// Two transports are supported and may be combined: ntfy push messages posted
// to the configured topic URL, and plain-text mail piped to an external
// sendmail-style command once per recipient. When system error reporting is
// disabled the package degrades to a no-op so callers never need to check.
package notifications
