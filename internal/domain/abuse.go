package domain

import "time"

// RestrictionTier is the filing restriction derived from an abuse score.
type RestrictionTier string

const (
	TierNone          RestrictionTier = "none"
	TierFeeMultiplier RestrictionTier = "fee_multiplier"
	TierAdminApproval RestrictionTier = "admin_approval_required"
	TierTemporaryBan  RestrictionTier = "temporary_ban"
)

// AbuseFlag is the per-(tenant, user, role, kind) filing-history aggregate.
// It is recomputed whenever a case of that kind reaches a terminal state and
// is never mutated by any other path.
type AbuseFlag struct {
	TenantID string   `json:"tenantId"`
	UserID   string   `json:"userId"`
	Role     Role     `json:"role"`
	Kind     CaseKind `json:"kind"`

	TotalCases     int `json:"totalCases"`
	FrivolousCases int `json:"frivolousCases"`
	MonthlyCases   int `json:"monthlyCases"`

	Score float64         `json:"abuseScore"` // 0-100
	Tier  RestrictionTier `json:"tier"`

	BannedUntil *time.Time `json:"bannedUntil,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Banned reports whether a temporary ban is active at the given instant.
func (f *AbuseFlag) Banned(now time.Time) bool {
	return f.Tier == TierTemporaryBan && f.BannedUntil != nil && now.Before(*f.BannedUntil)
}

// FeeMultiplier returns the dispute-fee multiplier for the flag's tier.
func (f *AbuseFlag) FeeMultiplier() float64 {
	switch f.Tier {
	case TierAdminApproval, TierTemporaryBan:
		return 2.0
	case TierFeeMultiplier:
		return 1.5
	default:
		return 1.0
	}
}

// FilingDecision is the answer to "may this party open a dispute case".
type FilingDecision struct {
	Allowed          bool    `json:"allowed"`
	Reason           string  `json:"reason,omitempty"`
	FeeAmount        float64 `json:"feeAmount,omitempty"`
	RequiresApproval bool    `json:"requiresApproval,omitempty"`
	Score            float64 `json:"abuseScore"`
}
