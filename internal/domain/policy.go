package domain

import "time"

// PolicyWindow is one tier of a piecewise cancellation penalty schedule:
// cancelling at or above ThresholdDays before the assignment start incurs
// PenaltyPercentage of the assignment value.
type PolicyWindow struct {
	ThresholdDays     int     `json:"thresholdDaysBeforeStart"`
	PenaltyPercentage float64 `json:"penaltyPercentage"`
	Description       string  `json:"description,omitempty"`
}

// Policy is the cancellation policy attached to a job posting/assignment.
// A policy is immutable once accepted by a counterparty; edits after
// acceptance require a new version.
type Policy struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	AssignmentID string `json:"assignmentId"`
	Version      int    `json:"version"`

	Windows          []PolicyWindow `json:"windows"`
	GracePeriodHours int            `json:"gracePeriodHours"`

	// Symmetric means the same windows apply regardless of which party
	// initiates the cancellation.
	Symmetric bool `json:"symmetric"`

	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Accepted reports whether the policy has been accepted by a counterparty
// and is therefore frozen.
func (p *Policy) Accepted() bool {
	return p.AcceptedAt != nil
}
