// Package session owns the process-wide authorization cookie set.
//
// A Manager refreshes cookies from a Source on start and then on a fixed
// interval. Readers take an immutable Snapshot without locking; refreshes are
// serialized. Once a refresh has succeeded the manager stays ready: a failed
// refresh marks the snapshot stale but keeps the previous cookies.
package session
