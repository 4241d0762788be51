// Package database provides SQLite-based run history for streamscout.
//
// HistoryDB stores every run together with the outcome of each channel it
// resolved or failed to resolve, so a past playlist can be re-exported and
// the last known manifest for a channel looked up. Channels are keyed by a
// SHA3-256 digest of their page URL.
//
// The database is a single file opened through modernc.org/sqlite, which
// keeps the binary CGO-free.
package database
