// Package operation owns the in-memory progress records for notebook
// operations. A Store is constructed once at startup and injected into the
// HTTP handlers and the notebook creator; nothing here is a package-level
// singleton, so tests build independent stores.
//
// Lifecycle of a record:
//
//	Start -> Advance* -> Complete | Fail -> (grace period) -> gone
//
// Progress only moves forward. Both terminal states stay readable for the
// configured grace period so a poller can tell success from failure, then the
// record disappears and lookups report ErrNotFound. Records live only in this
// process; a restart loses every in-flight record.
package operation
