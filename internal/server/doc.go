// Package server hosts the Fiber HTTP service and its middleware chain:
// request ids, access logging, panic recovery, error-to-JSON mapping,
// per-client rate limiting and bearer-token authentication. Route handlers
// live in the routes subpackage and receive their collaborators explicitly,
// so keep exports narrow and accept explicit dependencies.
package server
