package policy

import (
	"math"
	"sort"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
)

// PenaltyResult is the outcome of evaluating a policy against a
// cancellation timing.
type PenaltyResult struct {
	MatchedWindow     domain.PolicyWindow `json:"matchedWindow"`
	PenaltyPercentage float64             `json:"penaltyPercentage"`
	PenaltyAmount     float64             `json:"penaltyAmount"`
	DaysBeforeStart   int                 `json:"daysBeforeStart"`

	// Fallback marks that no window threshold was at or below
	// daysBeforeStart and the most restrictive window was applied.
	Fallback bool `json:"fallback,omitempty"`
}

// CalculatePenalty evaluates a policy: given the assignment start date, the
// evaluation instant (the cancellation timestamp), and the assignment value,
// it returns the matched window and the penalty owed.
//
// Windows are sorted descending by threshold before scanning, so match
// results never depend on caller ordering. The first window whose threshold
// is <= daysBeforeStart wins. If none matches (cancellation after the start
// date, or a malformed window set), the single most restrictive window
// applies: full penalty by default, not zero. That fallback is a deliberate
// anti-gaming rule.
//
// Pure function: no clock reads, no logging.
func CalculatePenalty(p *domain.Policy, startDate, evalDate time.Time, value float64) PenaltyResult {
	days := DaysBeforeStart(startDate, evalDate)

	windows := make([]domain.PolicyWindow, len(p.Windows))
	copy(windows, p.Windows)
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].ThresholdDays > windows[j].ThresholdDays
	})

	result := PenaltyResult{DaysBeforeStart: days}
	if len(windows) == 0 {
		return result
	}

	for _, w := range windows {
		if w.ThresholdDays <= days {
			result.MatchedWindow = w
			result.PenaltyPercentage = w.PenaltyPercentage
			result.PenaltyAmount = roundHalfUp(value * w.PenaltyPercentage / 100)
			return result
		}
	}

	// Past the start date (or all thresholds exceed the notice given):
	// apply the lowest-threshold window.
	most := windows[len(windows)-1]
	result.MatchedWindow = most
	result.PenaltyPercentage = most.PenaltyPercentage
	result.PenaltyAmount = roundHalfUp(value * most.PenaltyPercentage / 100)
	result.Fallback = true
	return result
}

// DaysBeforeStart returns ceil((start - eval) / 24h). Negative when the
// evaluation instant is past the start date.
func DaysBeforeStart(startDate, evalDate time.Time) int {
	diff := startDate.Sub(evalDate)
	return int(math.Ceil(diff.Hours() / 24))
}

// roundHalfUp rounds to whole currency units; fractional cents are not
// modeled.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
