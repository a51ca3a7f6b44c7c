// Package policy provides cancellation policy validation and penalty
// calculation.
package policy

import (
	"fmt"

	"github.com/locumbnb/enforcement/internal/domain"
)

// ValidationResult collects window validation failures. An empty Errors
// slice means the window set is persistable.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateWindows checks a window set before it is persisted. Invalid
// policies must never be saved; this is a pre-save guard, not a runtime
// guard.
func ValidateWindows(windows []domain.PolicyWindow) ValidationResult {
	var errs []string

	if len(windows) == 0 {
		errs = append(errs, "policy must define at least one window")
	}

	seen := make(map[int]bool, len(windows))
	for i, w := range windows {
		if w.ThresholdDays < 0 {
			errs = append(errs, fmt.Sprintf("window %d: threshold days must be >= 0, got %d", i, w.ThresholdDays))
		}
		if w.PenaltyPercentage < 0 || w.PenaltyPercentage > 100 {
			errs = append(errs, fmt.Sprintf("window %d: penalty percentage must be between 0 and 100, got %.2f", i, w.PenaltyPercentage))
		}
		if seen[w.ThresholdDays] {
			errs = append(errs, fmt.Sprintf("window %d: duplicate threshold %d days", i, w.ThresholdDays))
		}
		seen[w.ThresholdDays] = true
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// DefaultWindows returns the canonical 4-tier penalty template. It is a
// starting point for facility admins, never a hidden fallback.
func DefaultWindows() []domain.PolicyWindow {
	return []domain.PolicyWindow{
		{ThresholdDays: 30, PenaltyPercentage: 0, Description: "30+ days notice: no penalty"},
		{ThresholdDays: 14, PenaltyPercentage: 25, Description: "14-29 days notice: 25% penalty"},
		{ThresholdDays: 7, PenaltyPercentage: 50, Description: "7-13 days notice: 50% penalty"},
		{ThresholdDays: 0, PenaltyPercentage: 100, Description: "under 7 days notice: full penalty"},
	}
}
