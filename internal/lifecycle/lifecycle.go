// Package lifecycle defines the case state machines. One generic machine
// with a transition table per case kind, sharing the same transition
// discipline instead of three copy-pasted variants.
package lifecycle

import (
	"github.com/locumbnb/enforcement/internal/domain"
)

// Machine is a bounded state machine for one case kind.
type Machine struct {
	Kind        domain.CaseKind
	Initial     domain.State
	Transitions map[domain.State][]domain.State
	Terminal    map[domain.State]bool
}

// IsTerminal reports whether no further transition is permitted from s.
func (m *Machine) IsTerminal(s domain.State) bool {
	return m.Terminal[s]
}

// CanTransition reports whether from -> to is in the transition table.
func (m *Machine) CanTransition(from, to domain.State) bool {
	for _, next := range m.Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate checks a requested transition against the table and the
// terminal set. The returned error is a *domain.StateConflictError;
// the caller applies the state change only on nil.
func (m *Machine) Validate(c *domain.Case, to domain.State) error {
	if m.IsTerminal(c.State) {
		return &domain.StateConflictError{
			CaseID: c.ID,
			From:   c.State,
			To:     to,
			Reason: "case is in a terminal state",
		}
	}
	if !m.CanTransition(c.State, to) {
		return &domain.StateConflictError{
			CaseID: c.ID,
			From:   c.State,
			To:     to,
			Reason: "transition not permitted",
		}
	}
	return nil
}

// ForKind returns the machine governing a case kind.
func ForKind(kind domain.CaseKind) *Machine {
	switch kind {
	case domain.KindCancellation:
		return Cancellation
	case domain.KindViolation:
		return Violation
	case domain.KindDispute:
		return Dispute
	default:
		return nil
	}
}

// Cancellation: grace_period -> {pending, withdrawn}; pending -> {approved,
// rejected}. Withdrawal is only possible during the grace window; approval
// and rejection require an admin actor.
var Cancellation = &Machine{
	Kind:    domain.KindCancellation,
	Initial: domain.StateGracePeriod,
	Transitions: map[domain.State][]domain.State{
		domain.StateGracePeriod: {domain.StatePending, domain.StateWithdrawn},
		domain.StatePending:     {domain.StateApproved, domain.StateRejected},
	},
	Terminal: map[domain.State]bool{
		domain.StateApproved:  true,
		domain.StateRejected:  true,
		domain.StateWithdrawn: true,
	},
}

// Violation: pending_review -> under_investigation -> {confirmed,
// dismissed}; confirmed -> penalty_applied only on an explicit invoice
// issue. Invoice payment/collections mutate the invoice, not the case
// state.
var Violation = &Machine{
	Kind:    domain.KindViolation,
	Initial: domain.StatePendingReview,
	Transitions: map[domain.State][]domain.State{
		domain.StatePendingReview:      {domain.StateUnderInvestigation},
		domain.StateUnderInvestigation: {domain.StateConfirmed, domain.StateDismissed},
		domain.StateConfirmed:          {domain.StatePenaltyApplied},
	},
	Terminal: map[domain.State]bool{
		domain.StateDismissed:      true,
		domain.StatePenaltyApplied: true,
	},
}

// Dispute: open -> escalated -> {under_review, resolved, closed};
// under_review -> {resolved, closed}. Every dispute is escalated
// immediately on creation for SLA visibility; "open" never survives
// creation.
var Dispute = &Machine{
	Kind:    domain.KindDispute,
	Initial: domain.StateOpen,
	Transitions: map[domain.State][]domain.State{
		domain.StateOpen:        {domain.StateEscalated},
		domain.StateEscalated:   {domain.StateUnderReview, domain.StateResolved, domain.StateClosed},
		domain.StateUnderReview: {domain.StateResolved, domain.StateClosed},
	},
	Terminal: map[domain.State]bool{
		domain.StateResolved: true,
		domain.StateClosed:   true,
	},
}
