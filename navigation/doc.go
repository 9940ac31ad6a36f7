// Package navigation decides which root navigation tree a client mounts.
//
// The decision is a pure function of a Session snapshot. Callers own the
// snapshot lifecycle and call Resolve again whenever it changes.
package navigation
