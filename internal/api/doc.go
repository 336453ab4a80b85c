// Package api implements the HTTP layer: extraction queue endpoints, task
// lifecycle endpoints, cache endpoints, and the long-poll/SSE update
// surface. Handlers depend on narrow service interfaces so tests can drive
// them without the full wiring.
package api
