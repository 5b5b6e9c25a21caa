// Package collector wires one collection run end to end.
//
// A run takes the single-writer lock next to the metadata database, opens the
// store and object sink, starts the worker pool, drives the producer over the
// selected source (Discord history or live camera), shuts the pool down, and
// finally triggers the optional Label Studio sync and ntfy summary. Every log
// line of a run carries the same correlation id.
package collector
