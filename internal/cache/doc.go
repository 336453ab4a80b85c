// Package cache implements the unified TTL cache for expensive LLM-derived
// results, keyed by (kind, subject, owner, params). It guarantees at most
// one concurrent generation per key: the cache never runs the generation
// function itself, but exposes an in-flight marker that collapses
// near-simultaneous requesters onto a single computation.
package cache
