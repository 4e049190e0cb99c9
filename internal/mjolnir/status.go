// ABOUTME: Reconciliation outcome type reported to the orchestrator
// ABOUTME: Explicit variant so "not applicable" can never be confused with "healthy"

package mjolnir

// Kind classifies a reconciliation outcome.
type Kind int

const (
	// KindNoOpinion means this evaluator has nothing to assert for the
	// pass; another layer owns the current condition.
	KindNoOpinion Kind = iota

	// KindMaintenance means enablement is deferred until a transient
	// precondition (workload, credential) is satisfied.
	KindMaintenance

	// KindBlocked means a human-actionable prerequisite is missing.
	KindBlocked

	// KindActive means the moderation add-on is provisioned and running.
	KindActive
)

func (k Kind) String() string {
	switch k {
	case KindNoOpinion:
		return "no-opinion"
	case KindMaintenance:
		return "maintenance"
	case KindBlocked:
		return "blocked"
	case KindActive:
		return "active"
	default:
		return "unknown"
	}
}

// Status is the outcome of one reconciliation pass. It is recomputed
// from scratch every pass and never persisted.
type Status struct {
	Kind   Kind
	Detail string
}

// NoOpinion returns a silent status.
func NoOpinion() Status {
	return Status{Kind: KindNoOpinion}
}

// Maintenance returns a deferred status with a waiting detail.
func Maintenance(detail string) Status {
	return Status{Kind: KindMaintenance, Detail: detail}
}

// Blocked returns a human-actionable status.
func Blocked(detail string) Status {
	return Status{Kind: KindBlocked, Detail: detail}
}

// Active returns a healthy status.
func Active() Status {
	return Status{Kind: KindActive}
}
