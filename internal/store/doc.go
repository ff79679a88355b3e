// Package store defines the namespaced key-value Secret Store that owns every
// persisted byte of the service: client records, the token denylist, cached
// upstream payloads, mirror records and the announcement slot. Three backends
// share the Store contract: redis (one logical database per namespace),
// memory (tests and single-process development) and file (one file per key,
// temp file + rename writes, file modtime doubling as the expiry deadline).
// Components receive a Store explicitly; nothing in this package keeps
// process-wide handles.
package store
