package domain

import (
	"time"
)

// CaseKind identifies which enforcement workflow a case belongs to.
type CaseKind string

const (
	KindCancellation CaseKind = "cancellation"
	KindViolation    CaseKind = "violation"
	KindDispute      CaseKind = "dispute"
)

// Role identifies the marketplace role a party acts under.
type Role string

const (
	RolePhysician Role = "physician"
	RoleFacility  Role = "facility"
	RoleVendor    Role = "vendor"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// Party is a case participant.
type Party struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// State is a case lifecycle state. The valid set depends on the case kind.
type State string

// Cancellation states
const (
	StateGracePeriod State = "grace_period"
	StatePending     State = "pending"
	StateApproved    State = "approved"
	StateRejected    State = "rejected"
	StateWithdrawn   State = "withdrawn"
)

// Violation states
const (
	StatePendingReview      State = "pending_review"
	StateUnderInvestigation State = "under_investigation"
	StateConfirmed          State = "confirmed"
	StateDismissed          State = "dismissed"
	StatePenaltyApplied     State = "penalty_applied"
)

// Dispute states
const (
	StateOpen        State = "open"
	StateEscalated   State = "escalated"
	StateUnderReview State = "under_review"
	StateResolved    State = "resolved"
	StateClosed      State = "closed"
)

// AuditEntry is one immutable record in a case's append-only trail.
// Corrections are modeled as new entries referencing the old entry id
// in Metadata, never as edits.
type AuditEntry struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	Action          string            `json:"action"`
	PerformedBy     string            `json:"performedBy"`
	PerformedByRole Role              `json:"performedByRole"`
	Details         string            `json:"details,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Case is one adjudicable enforcement instance. Kind selects which of the
// detail structs is populated. Cases are mutated only through lifecycle
// transitions; Version is the optimistic concurrency counter checked on
// every write.
type Case struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenantId"`
	Kind         CaseKind `json:"kind"`
	AssignmentID string   `json:"assignmentId,omitempty"`

	Initiator  Party `json:"initiator"`
	Respondent Party `json:"respondent"`

	State   State `json:"state"`
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Audit []AuditEntry `json:"audit"`

	Cancellation *CancellationDetails `json:"cancellation,omitempty"`
	Violation    *ViolationDetails    `json:"violation,omitempty"`
	Dispute      *DisputeDetails      `json:"dispute,omitempty"`
}

// CancellationDetails holds the cancellation-specific fields of a case.
type CancellationDetails struct {
	ContractID      string     `json:"contractId"`
	Reason          string     `json:"reason"`
	StartDate       time.Time  `json:"startDate"`
	AssignmentValue float64    `json:"assignmentValue"`
	PolicyVersion   int        `json:"policyVersion"`
	GraceExpiresAt  *time.Time `json:"graceExpiresAt,omitempty"`

	// Penalty outcome, set on approval.
	PenaltyPercentage float64 `json:"penaltyPercentage,omitempty"`
	PenaltyAmount     float64 `json:"penaltyAmount,omitempty"`
	DaysBeforeStart   int     `json:"daysBeforeStart,omitempty"`
	ChargeID          string  `json:"chargeId,omitempty"`
}

// ViolationDetails holds the circumvention-violation fields of a case.
// PenaltyAmount is fixed at creation from enforcement settings, never
// recomputed.
type ViolationDetails struct {
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Evidence       []string `json:"evidence,omitempty"`
	RelatedPartyID string   `json:"relatedPartyId,omitempty"`
	PenaltyAmount  float64  `json:"penaltyAmount"`
	InvoiceID      string   `json:"invoiceId,omitempty"`
}

// DisputeOutcome is the terminal resolution verdict of a dispute.
type DisputeOutcome string

const (
	OutcomeFavorInitiator  DisputeOutcome = "favor_initiator"
	OutcomeFavorRespondent DisputeOutcome = "favor_respondent"
	OutcomeSplit           DisputeOutcome = "split"
	OutcomeDismissed       DisputeOutcome = "dismissed"
	OutcomeSettled         DisputeOutcome = "settled"
)

// EscrowAction is the directive handed to the external payment collaborator
// when a dispute resolves. The engine never moves money itself.
type EscrowAction string

const (
	EscrowReleaseInitiator  EscrowAction = "release_initiator"
	EscrowReleaseRespondent EscrowAction = "release_respondent"
	EscrowSplit             EscrowAction = "split"
	EscrowHold              EscrowAction = "hold"
)

// DisputeDetails holds the dispute-specific fields of a case.
type DisputeDetails struct {
	Type        string  `json:"type"`
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	EscrowAmount float64 `json:"escrowAmount,omitempty"`

	FeeAmount   float64 `json:"feeAmount"`
	FeeRefunded bool    `json:"feeRefunded"`

	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`

	// Screening verdict recorded at creation (".allow" or ".review").
	ScreeningOutcome string `json:"screeningOutcome,omitempty"`

	// Resolution, set on the terminal transition.
	Outcome      DisputeOutcome `json:"outcome,omitempty"`
	Resolution   string         `json:"resolution,omitempty"`
	EscrowAction EscrowAction   `json:"escrowAction,omitempty"`
	ResolvedAt   *time.Time     `json:"resolvedAt,omitempty"`
}

// Audit actions recorded by the engine.
const (
	ActionCaseCreated      = "case_created"
	ActionStateTransition  = "state_transition"
	ActionGraceElapsed     = "grace_period_elapsed"
	ActionChargeCreated    = "penalty_charge_created"
	ActionChargeWaived     = "penalty_charge_waived"
	ActionInvoiceIssued    = "penalty_invoice_issued"
	ActionPaymentRecorded  = "invoice_payment_recorded"
	ActionInvoiceOverdue   = "penalty_invoice_overdue"
	ActionSentToCollection = "invoice_sent_to_collections"
	ActionAutoEscalated    = "auto_escalated"
	ActionResolved         = "dispute_resolved"
)
