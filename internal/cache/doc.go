// Package cache implements the read-through cache that sits in front of the
// upstream fetcher. Entries live in the store's cache namespace as JSON,
// expire with a per-resource TTL, and are populated on miss by the caller's
// fetch function. Concurrent misses on one key collapse into a single fetch.
// A failed fetch never writes an entry, so errors are not cached.
package cache
