// Package server runs the reconcile loop and serves the status
// surface the orchestrator polls.
//
// GET /v1/status returns the outcome of the most recent pass; POST
// /v1/reconcile queues an extra pass. Both require a bearer JWT signed
// with the configured secret. Passes are serialized through a single
// loop goroutine, so the core never sees concurrent reconciliation.
package server
