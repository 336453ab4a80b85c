// Package hub implements the in-process notification registry that lets
// connected clients observe queue and task changes without continuous
// polling. It offers two delivery modes over the same broadcast path: a
// bounded long-poll wait and a streaming subscription consumed by the SSE
// transport.
//
// The registry is process-local and intentionally non-durable: watchers are
// rebuilt as clients reconnect, and no invariant spans a restart. Running
// more than one server instance requires replacing this package with an
// external pub/sub backend that preserves the per-owner ordering and
// watcher-isolation contracts.
package hub
