// Package event defines the execution event vocabulary and its in-process
// distribution.
//
// Every producer in the engine — the scheduler, node functions, and provider
// adapters — reports progress exclusively through this package, so no
// producer ever depends on presentation or persistence code. Consumers
// subscribe on the Bus; delivery is fire-and-forget from the producer's
// point of view and never blocks the flow.
//
// The Emitter fixes the execution id and node id once so provider-facing
// code emits through simple callbacks (Chunk, ToolStart, Usage, ...) without
// ever constructing the envelope directly.
package event
