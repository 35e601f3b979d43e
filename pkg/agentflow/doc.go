// Package agentflow provides a push/pull execution engine for conversational
// agent graphs.
//
// A flow is a directed graph of nodes (chat calls, tool declarations,
// user-input pauses) connected by named edges. The Scheduler walks the graph
// with on-demand (pull) and event-driven (push) evaluation: a node's missing
// inputs are pulled depth-first from its incoming edges, and its outputs are
// pushed forward to its successors when it finishes. Pulled results are
// memoized per request; pushed executions always run fresh.
//
// The Runner owns one Scheduler per request id and exposes the external
// surface: Start, Resume, Cancel, and Snapshot. A flow that reaches a
// user-input node parks in place until Resume supplies the value; the
// Scheduler instance stays alive for the whole suspension.
//
// All progress is reported through the event bus in the event subpackage.
// Chat nodes reach the model provider through the llm subpackage, which
// hides provider formatting, retry, rate limiting, and cancellation-aware
// usage accounting behind a single call.
package agentflow
