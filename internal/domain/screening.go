package domain

// ScreeningRule is an admin-configured CEL expression evaluated against a
// case submission before the case is created. Rules map their numeric score
// to an outcome via bands.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Kind restricts the rule to one case kind; empty applies to all.
	Kind CaseKind `json:"kind,omitempty"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	Bands []ScreeningBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// ScreeningBand maps a score range to a screening outcome.
type ScreeningBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".allow", ".review", ".deny"
	Reason     string   `json:"reason"`
}

// ScreeningResult is the output of a single rule evaluation.
type ScreeningResult struct {
	RuleID    string  `json:"ruleId"`
	TenantID  string  `json:"tenantId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	ProcessMs int64   `json:"processMs"`
}

// Screening outcomes, most restrictive wins across rules.
const (
	ScreeningAllow  = ".allow"
	ScreeningReview = ".review"
	ScreeningDeny   = ".deny"
	ScreeningError  = ".err"
)
