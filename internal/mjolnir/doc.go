// Package mjolnir reconciles the enablement of the Mjolnir moderation
// add-on against a Synapse deployment.
//
// # Overview
//
// Two pieces cooperate. CollectStatus is a decision function invoked
// every pass: it inspects the feature toggle, container reachability,
// the running workload, the admin credential, and the prerequisite
// moderators room, then reports one of NoOpinion, Maintenance,
// Blocked, or Active. Enable is the idempotent provisioning sequence
// it triggers when all preconditions hold.
//
// # Invariants
//
// No step assumes a previous pass completed. Account registration
// tolerates "already exists" by returning the existing identity; the
// management room is reused when present; the config artifact is
// rewritten with identical content on repeat passes. Passes are
// serialized by the caller; idempotence is the only concurrency
// safety mechanism.
//
// # Error policy
//
// Transient unavailability (container down, workload not started,
// credential not issued) defers silently. A missing moderators room is
// human-actionable and reported as Blocked. API errors during the
// exploratory room lookup are downgraded to "try again next pass"; API
// errors inside the enablement sequence propagate as incidents.
package mjolnir
