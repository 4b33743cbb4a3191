// Package health reports whether the service's dependencies are usable.
//
// The service registers one Checker per dependency: the identity provider's
// key set endpoint, the key cache backend and the task store. A failing
// required dependency makes the service unready; a failing optional one
// (the shared key cache) only degrades it, since verification still works
// by fetching keys directly.
//
// Handlers for /healthz, /readyz and /health are mounted on a chi router
// with Mount.
package health
