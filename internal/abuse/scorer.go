// Package abuse computes dispute-filing risk scores from a party's case
// history and gates filing eligibility.
package abuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
)

// Scorer derives a 0-100 abuse score per (user, role) from case history.
// Monthly filing counts are served from cache counters when available,
// with a repository fallback.
type Scorer struct {
	repo  domain.Repository
	cache domain.Cache
	cfg   domain.EnforcementConfig

	now func() time.Time
}

// NewScorer creates a new abuse scorer.
func NewScorer(repo domain.Repository, cache domain.Cache, cfg domain.EnforcementConfig) *Scorer {
	return &Scorer{
		repo:  repo,
		cache: cache,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Score is the pure scoring formula:
//
//	min(100, 40*frivolousRate + monthlyBonus + totalBonus)
//
// frivolousRate = frivolous/total (0 when total is 0); each monthly case
// over the threshold adds 10 points capped at 30; each total case over the
// threshold adds 3 points capped at 30.
func Score(total, frivolous, monthly int, cfg domain.EnforcementConfig) float64 {
	var frivolousRate float64
	if total > 0 {
		frivolousRate = float64(frivolous) / float64(total)
	}

	score := 40 * frivolousRate

	if monthly > cfg.MonthlyCaseThreshold {
		bonus := 10 * float64(monthly-cfg.MonthlyCaseThreshold)
		if bonus > 30 {
			bonus = 30
		}
		score += bonus
	}

	if total > cfg.TotalCaseThreshold {
		bonus := 3 * float64(total-cfg.TotalCaseThreshold)
		if bonus > 30 {
			bonus = 30
		}
		score += bonus
	}

	if score > 100 {
		score = 100
	}
	return score
}

// TierFor maps a score to its restriction tier.
func TierFor(score float64) domain.RestrictionTier {
	switch {
	case score >= 90:
		return domain.TierTemporaryBan
	case score >= 80:
		return domain.TierAdminApproval
	case score >= 60:
		return domain.TierFeeMultiplier
	default:
		return domain.TierNone
	}
}

// Compute rebuilds the abuse flag for a party from its case history. Called
// whenever a case of the kind reaches a terminal state; the result is
// persisted atomically with that transition by the caller.
func (s *Scorer) Compute(ctx context.Context, tenantID, userID string, role domain.Role, kind domain.CaseKind) (*domain.AbuseFlag, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("tenantID and userID are required")
	}

	cases, err := s.repo.ListCasesByParty(ctx, tenantID, kind, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load case history: %w", err)
	}

	now := s.now()
	var total, frivolous, monthly int
	for _, c := range cases {
		if c.Initiator.ID != userID || c.Initiator.Role != role {
			continue
		}
		total++
		if Frivolous(c) {
			frivolous++
		}
		if c.CreatedAt.After(now.AddDate(0, -1, 0)) {
			monthly++
		}
	}

	// Cache counter tracks in-flight filings that the repository scan may
	// not have flushed yet under the Pro tier's async write path.
	if cached := s.cachedMonthlyCount(ctx, tenantID, userID, role, kind); cached > int64(monthly) {
		monthly = int(cached)
	}

	score := Score(total, frivolous, monthly, s.cfg)
	tier := TierFor(score)

	flag := &domain.AbuseFlag{
		TenantID:       tenantID,
		UserID:         userID,
		Role:           role,
		Kind:           kind,
		TotalCases:     total,
		FrivolousCases: frivolous,
		MonthlyCases:   monthly,
		Score:          score,
		Tier:           tier,
		UpdatedAt:      now,
	}

	if tier == domain.TierTemporaryBan {
		until := now.AddDate(0, 0, s.cfg.BanDurationDays)
		// Preserve a longer ban already in force.
		if prev, err := s.repo.GetAbuseFlag(ctx, tenantID, userID, role, kind); err == nil &&
			prev.BannedUntil != nil && prev.BannedUntil.After(until) {
			until = *prev.BannedUntil
		}
		flag.BannedUntil = &until
	}

	return flag, nil
}

// Rescore reapplies the scoring formula and tier to a flag whose counts
// were adjusted in place, so the updated flag can be persisted atomically
// with the transition that changed them.
func (s *Scorer) Rescore(flag *domain.AbuseFlag) {
	now := s.now()
	flag.Score = Score(flag.TotalCases, flag.FrivolousCases, flag.MonthlyCases, s.cfg)
	flag.Tier = TierFor(flag.Score)
	flag.UpdatedAt = now

	if flag.Tier == domain.TierTemporaryBan {
		until := now.AddDate(0, 0, s.cfg.BanDurationDays)
		if flag.BannedUntil == nil || flag.BannedUntil.Before(until) {
			flag.BannedUntil = &until
		}
	}
}

// CanFileCase gates dispute creation. An active ban is checked first and
// rejected outright; a banned party never sees a fee quote. Otherwise the
// flat fee times the tier multiplier is returned, with the admin
// pre-approval marker for the 80+ tier.
func (s *Scorer) CanFileCase(ctx context.Context, tenantID, userID string, role domain.Role) (*domain.FilingDecision, error) {
	flag, err := s.currentFlag(ctx, tenantID, userID, role, domain.KindDispute)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if flag.Banned(now) {
		return &domain.FilingDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("temporarily banned from filing disputes until %s", flag.BannedUntil.Format(time.RFC3339)),
			Score:   flag.Score,
		}, nil
	}

	return &domain.FilingDecision{
		Allowed:          true,
		FeeAmount:        s.cfg.DisputeFeeAmount * flag.FeeMultiplier(),
		RequiresApproval: flag.Tier == domain.TierAdminApproval,
		Score:            flag.Score,
	}, nil
}

// RecordFiling bumps the rolling monthly filing counter. Best effort; the
// repository scan remains the source of truth.
func (s *Scorer) RecordFiling(ctx context.Context, tenantID, userID string, role domain.Role, kind domain.CaseKind) {
	if s.cache == nil {
		return
	}
	_, _ = s.cache.IncrementCounter(ctx, tenantID, counterKey(userID, role, kind), 30*24*time.Hour)
}

// currentFlag returns the cached flag when fresh, otherwise recomputes.
func (s *Scorer) currentFlag(ctx context.Context, tenantID, userID string, role domain.Role, kind domain.CaseKind) (*domain.AbuseFlag, error) {
	key := flagKey(userID, role, kind)

	if s.cache != nil {
		if flag, err := s.cache.GetAbuseFlag(ctx, tenantID, key); err == nil && flag != nil {
			return flag, nil
		}
	}

	flag, err := s.repo.GetAbuseFlag(ctx, tenantID, userID, role, kind)
	if err == nil {
		s.cacheFlag(ctx, tenantID, key, flag)
		return flag, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	flag, err = s.Compute(ctx, tenantID, userID, role, kind)
	if err != nil {
		return nil, err
	}
	s.cacheFlag(ctx, tenantID, key, flag)
	return flag, nil
}

func (s *Scorer) cacheFlag(ctx context.Context, tenantID, key string, flag *domain.AbuseFlag) {
	if s.cache == nil {
		return
	}
	_ = s.cache.SetAbuseFlag(ctx, tenantID, key, flag, 5*time.Minute)
}

// InvalidateFlag drops the cached flag after a terminal transition rewrote
// the persisted aggregate.
func (s *Scorer) InvalidateFlag(ctx context.Context, tenantID, userID string, role domain.Role, kind domain.CaseKind) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, flagKey(userID, role, kind))
}

func (s *Scorer) cachedMonthlyCount(ctx context.Context, tenantID, userID string, role domain.Role, kind domain.CaseKind) int64 {
	if s.cache == nil {
		return 0
	}
	raw, err := s.cache.Get(ctx, tenantID, counterKey(userID, role, kind))
	if err != nil || raw == nil {
		return 0
	}
	var n int64
	for _, b := range raw {
		if b < '0' || b > '9' {
			return 0
		}
		n = n*10 + int64(b-'0')
	}
	return n
}

// Frivolous reports whether a case counts against its
// initiator: a rejected cancellation request, a dismissed violation report,
// or a dispute dismissed / decided for the respondent.
func Frivolous(c *domain.Case) bool {
	switch c.State {
	case domain.StateRejected, domain.StateDismissed:
		return true
	case domain.StateResolved:
		if c.Dispute == nil {
			return false
		}
		return c.Dispute.Outcome == domain.OutcomeDismissed || c.Dispute.Outcome == domain.OutcomeFavorRespondent
	default:
		return false
	}
}

func flagKey(userID string, role domain.Role, kind domain.CaseKind) string {
	return fmt.Sprintf("abuse:%s:%s:%s", kind, userID, role)
}

func counterKey(userID string, role domain.Role, kind domain.CaseKind) string {
	return fmt.Sprintf("filings:%s:%s:%s", kind, userID, role)
}
