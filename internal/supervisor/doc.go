// Package supervisor is a client for the sidecar process supervisor
// that manages the homeserver container.
//
// The supervisor exposes a small REST API over a unix socket: a health
// probe, a service listing, and a file-push endpoint. Reachability and
// service probes never return errors — an unreachable or not-ready
// supervisor is a routine observation during reconciliation, not a
// failure. File pushes do error, because a half-written config
// artifact must surface.
package supervisor
