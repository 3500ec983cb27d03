// Package store defines the run history contract shared by the event sinks,
// the HTTP API and the concrete backends. Implementations live in other
// packages; this package must not import database drivers.
package store
