package policy

import (
	"testing"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
)

func defaultPolicy() *domain.Policy {
	return &domain.Policy{
		ID:           "policy-001",
		TenantID:     "tenant-001",
		AssignmentID: "assignment-001",
		Version:      1,
		Windows:      DefaultWindows(),
	}
}

func TestBoundaryExactness(t *testing.T) {
	p := defaultPolicy()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	// Exactly 14 days notice must match the 14-day window, not 30 or 7.
	eval := start.AddDate(0, 0, -14)
	result := CalculatePenalty(p, start, eval, 10000)

	if result.DaysBeforeStart != 14 {
		t.Fatalf("expected 14 days before start, got %d", result.DaysBeforeStart)
	}
	if result.MatchedWindow.ThresholdDays != 14 {
		t.Errorf("expected 14-day window, got %d-day", result.MatchedWindow.ThresholdDays)
	}
	if result.PenaltyPercentage != 25 {
		t.Errorf("expected 25%%, got %.2f%%", result.PenaltyPercentage)
	}
	if result.PenaltyAmount != 2500 {
		t.Errorf("expected penalty 2500, got %.2f", result.PenaltyAmount)
	}
}

func TestWindowTiers(t *testing.T) {
	p := defaultPolicy()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		days       int
		percentage float64
	}{
		{45, 0},
		{30, 0},
		{29, 25},
		{14, 25},
		{13, 50},
		{7, 50},
		{6, 100},
		{1, 100},
		{0, 100},
	}

	for _, tc := range cases {
		eval := start.AddDate(0, 0, -tc.days)
		result := CalculatePenalty(p, start, eval, 1000)
		if result.PenaltyPercentage != tc.percentage {
			t.Errorf("days=%d: expected %.0f%%, got %.0f%%", tc.days, tc.percentage, result.PenaltyPercentage)
		}
	}
}

func TestFallbackToMostRestrictive(t *testing.T) {
	p := defaultPolicy()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	// 5 days past the start date: no window matches, the 0-day/100%
	// window applies, never 0%.
	eval := start.AddDate(0, 0, 5)
	result := CalculatePenalty(p, start, eval, 8000)

	if result.DaysBeforeStart != -5 {
		t.Fatalf("expected -5 days before start, got %d", result.DaysBeforeStart)
	}
	if !result.Fallback {
		t.Error("expected fallback flag to be set")
	}
	if result.MatchedWindow.ThresholdDays != 0 {
		t.Errorf("expected 0-day window, got %d-day", result.MatchedWindow.ThresholdDays)
	}
	if result.PenaltyPercentage != 100 {
		t.Errorf("expected 100%%, got %.2f%%", result.PenaltyPercentage)
	}
	if result.PenaltyAmount != 8000 {
		t.Errorf("expected penalty 8000, got %.2f", result.PenaltyAmount)
	}
}

func TestFallbackWithNonZeroFloor(t *testing.T) {
	// A policy whose tightest window starts at 3 days: negative notice
	// still lands on that window.
	p := &domain.Policy{
		Windows: []domain.PolicyWindow{
			{ThresholdDays: 10, PenaltyPercentage: 20},
			{ThresholdDays: 3, PenaltyPercentage: 75},
		},
	}
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	result := CalculatePenalty(p, start, start.AddDate(0, 0, 2), 1000)
	if result.MatchedWindow.ThresholdDays != 3 {
		t.Errorf("expected fallback to 3-day window, got %d-day", result.MatchedWindow.ThresholdDays)
	}
	if !result.Fallback {
		t.Error("expected fallback flag")
	}
	if result.PenaltyAmount != 750 {
		t.Errorf("expected 750, got %.2f", result.PenaltyAmount)
	}
}

func TestRounding(t *testing.T) {
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	eval := start.AddDate(0, 0, -20)

	p := &domain.Policy{
		Windows: []domain.PolicyWindow{{ThresholdDays: 0, PenaltyPercentage: 33}},
	}

	// round(999 * 0.33) = round(329.67) = 330
	result := CalculatePenalty(p, start, eval, 999)
	if result.PenaltyAmount != 330 {
		t.Errorf("expected 330, got %.2f", result.PenaltyAmount)
	}

	// Exact division stays exact.
	p.Windows[0].PenaltyPercentage = 25
	result = CalculatePenalty(p, start, eval, 10000)
	if result.PenaltyAmount != 2500 {
		t.Errorf("expected 2500, got %.2f", result.PenaltyAmount)
	}
}

func TestUnsortedWindowsMatchDeterministically(t *testing.T) {
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	eval := start.AddDate(0, 0, -14)

	sorted := defaultPolicy()
	shuffled := &domain.Policy{
		Windows: []domain.PolicyWindow{
			{ThresholdDays: 7, PenaltyPercentage: 50},
			{ThresholdDays: 30, PenaltyPercentage: 0},
			{ThresholdDays: 0, PenaltyPercentage: 100},
			{ThresholdDays: 14, PenaltyPercentage: 25},
		},
	}

	a := CalculatePenalty(sorted, start, eval, 10000)
	b := CalculatePenalty(shuffled, start, eval, 10000)

	if a.PenaltyPercentage != b.PenaltyPercentage || a.PenaltyAmount != b.PenaltyAmount {
		t.Errorf("caller ordering changed the match: sorted=(%v, %v) shuffled=(%v, %v)",
			a.PenaltyPercentage, a.PenaltyAmount, b.PenaltyPercentage, b.PenaltyAmount)
	}
}

func TestDeterminism(t *testing.T) {
	p := defaultPolicy()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	for days := -10; days <= 45; days++ {
		eval := start.AddDate(0, 0, -days)
		first := CalculatePenalty(p, start, eval, 12345)
		second := CalculatePenalty(p, start, eval, 12345)
		if first.PenaltyPercentage != second.PenaltyPercentage || first.PenaltyAmount != second.PenaltyAmount {
			t.Fatalf("days=%d: re-evaluation differed", days)
		}
	}
}

func TestPartialDayCeiling(t *testing.T) {
	start := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	// 13 days and 6 hours of notice rounds up to 14 days.
	eval := start.Add(-13*24*time.Hour - 6*time.Hour)
	if days := DaysBeforeStart(start, eval); days != 14 {
		t.Errorf("expected 14, got %d", days)
	}

	// Exactly 13 days stays 13.
	eval = start.Add(-13 * 24 * time.Hour)
	if days := DaysBeforeStart(start, eval); days != 13 {
		t.Errorf("expected 13, got %d", days)
	}
}
