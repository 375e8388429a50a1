// Package customization keeps per-monitor overrides: a display name, the unison
// flag, and the effective brightness range.
//
// The Store is bounded and access ordered. Reading a customization with
// TryLoad marks it most recently used; inserting past capacity evicts the least
// recently touched monitor. Every insert, removal, and eviction is forwarded to
// a Persister so the durable copy mirrors the in-memory set.
//
// Invalid input never raises an error. Save treats a bad range or an
// all-default value as a request to clear the customization.
package customization
