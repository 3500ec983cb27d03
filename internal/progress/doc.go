// Package progress carries run lifecycle events from the orchestrators to
// pluggable sinks. Events are batched on a background goroutine so a slow
// sink never stalls a run.
package progress
