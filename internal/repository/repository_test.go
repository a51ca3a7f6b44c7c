package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "enforcement-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testCancellationCase(id, tenantID string, createdAt time.Time) *domain.Case {
	return &domain.Case{
		ID:           id,
		TenantID:     tenantID,
		Kind:         domain.KindCancellation,
		AssignmentID: "assignment-001",
		Initiator:    domain.Party{ID: "phys-001", Role: domain.RolePhysician},
		Respondent:   domain.Party{ID: "fac-001", Role: domain.RoleFacility},
		State:        domain.StateGracePeriod,
		Version:      1,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Audit: []domain.AuditEntry{
			{
				ID:              "audit-001",
				Timestamp:       createdAt,
				Action:          domain.ActionCaseCreated,
				PerformedBy:     "phys-001",
				PerformedByRole: domain.RolePhysician,
				Details:         "cancellation case opened",
			},
		},
		Cancellation: &domain.CancellationDetails{
			ContractID:      "contract-001",
			Reason:          "family emergency",
			StartDate:       createdAt.Add(14 * 24 * time.Hour),
			AssignmentValue: 10000,
			PolicyVersion:   1,
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAndGetCase", func(t *testing.T) {
		c := testCancellationCase("case-001", tenantID, now)
		if err := repo.CreateCase(ctx, tenantID, c); err != nil {
			t.Fatalf("CreateCase failed: %v", err)
		}

		retrieved, err := repo.GetCase(ctx, tenantID, c.ID)
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}

		if retrieved.ID != c.ID {
			t.Errorf("expected ID %s, got %s", c.ID, retrieved.ID)
		}
		if retrieved.State != domain.StateGracePeriod {
			t.Errorf("expected state %s, got %s", domain.StateGracePeriod, retrieved.State)
		}
		if retrieved.Version != 1 {
			t.Errorf("expected version 1, got %d", retrieved.Version)
		}
		if retrieved.Cancellation == nil {
			t.Fatal("expected cancellation details to round-trip")
		}
		if retrieved.Cancellation.AssignmentValue != 10000 {
			t.Errorf("expected assignment value 10000, got %.2f", retrieved.Cancellation.AssignmentValue)
		}
		if len(retrieved.Audit) != 1 {
			t.Fatalf("expected 1 audit entry, got %d", len(retrieved.Audit))
		}
		if retrieved.Audit[0].Action != domain.ActionCaseCreated {
			t.Errorf("expected audit action %s, got %s", domain.ActionCaseCreated, retrieved.Audit[0].Action)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetCase(ctx, "tenant-002", "case-001")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for wrong tenant, got %v", err)
		}
	})

	t.Run("GetNonExistentCase", func(t *testing.T) {
		_, err := repo.GetCase(ctx, tenantID, "no-such-case")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		if err := repo.CreateCase(ctx, "", testCancellationCase("case-x", "", now)); err == nil {
			t.Error("expected error for missing tenantID")
		}
	})
}

func TestApplyCaseMutation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	c := testCancellationCase("case-001", tenantID, now)
	if err := repo.CreateCase(ctx, tenantID, c); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	t.Run("TransitionBumpsVersion", func(t *testing.T) {
		c.State = domain.StatePending
		c.UpdatedAt = now.Add(time.Minute)
		c.Audit = append(c.Audit, domain.AuditEntry{
			ID:        "audit-002",
			Timestamp: c.UpdatedAt,
			Action:    domain.ActionStateTransition,
			Details:   "grace period elapsed",
		})

		err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            c,
			ExpectedVersion: 1,
		})
		if err != nil {
			t.Fatalf("ApplyCaseMutation failed: %v", err)
		}
		if c.Version != 2 {
			t.Errorf("expected version 2 after mutation, got %d", c.Version)
		}

		retrieved, err := repo.GetCase(ctx, tenantID, c.ID)
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if retrieved.State != domain.StatePending {
			t.Errorf("expected state %s, got %s", domain.StatePending, retrieved.State)
		}
		if retrieved.Version != 2 {
			t.Errorf("expected stored version 2, got %d", retrieved.Version)
		}
		if len(retrieved.Audit) != 2 {
			t.Errorf("expected 2 audit entries, got %d", len(retrieved.Audit))
		}
	})

	t.Run("StaleVersionRejected", func(t *testing.T) {
		stale := testCancellationCase("case-001", tenantID, now)
		stale.State = domain.StateApproved

		err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            stale,
			ExpectedVersion: 1, // current version is 2
		})
		if !errors.Is(err, domain.ErrStaleVersion) {
			t.Errorf("expected ErrStaleVersion, got %v", err)
		}

		retrieved, err := repo.GetCase(ctx, tenantID, "case-001")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if retrieved.State != domain.StatePending {
			t.Errorf("stale mutation should not apply, state is %s", retrieved.State)
		}
	})

	t.Run("UnknownCaseNotFound", func(t *testing.T) {
		ghost := testCancellationCase("no-such-case", tenantID, now)
		err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            ghost,
			ExpectedVersion: 1,
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MutationWithCharge", func(t *testing.T) {
		retrieved, err := repo.GetCase(ctx, tenantID, "case-001")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}

		retrieved.State = domain.StateApproved
		retrieved.UpdatedAt = now.Add(2 * time.Minute)
		charge := &domain.PenaltyCharge{
			ID:         "charge-001",
			TenantID:   tenantID,
			CaseID:     retrieved.ID,
			ChargedTo:  retrieved.Initiator,
			Amount:     2500,
			Percentage: 25,
			Status:     domain.ChargePending,
			CreatedAt:  retrieved.UpdatedAt,
			UpdatedAt:  retrieved.UpdatedAt,
		}

		err = repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            retrieved,
			ExpectedVersion: retrieved.Version,
			NewCharge:       charge,
		})
		if err != nil {
			t.Fatalf("ApplyCaseMutation failed: %v", err)
		}

		got, err := repo.GetPenaltyCharge(ctx, tenantID, "charge-001")
		if err != nil {
			t.Fatalf("GetPenaltyCharge failed: %v", err)
		}
		if got.Amount != 2500 {
			t.Errorf("expected charge amount 2500, got %.2f", got.Amount)
		}
		if got.Status != domain.ChargePending {
			t.Errorf("expected charge status pending, got %s", got.Status)
		}
	})
}

func TestListAndCountCases(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"case-a", "case-b", "case-c"} {
		c := testCancellationCase(id, tenantID, now.Add(time.Duration(i)*time.Minute))
		if err := repo.CreateCase(ctx, tenantID, c); err != nil {
			t.Fatalf("CreateCase failed: %v", err)
		}
	}

	// Same initiator, different kind.
	dispute := testCancellationCase("case-d", tenantID, now)
	dispute.Kind = domain.KindDispute
	dispute.State = domain.StateOpen
	dispute.Cancellation = nil
	dispute.Dispute = &domain.DisputeDetails{Type: "payment", Subject: "unpaid shift"}
	if err := repo.CreateCase(ctx, tenantID, dispute); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	t.Run("ListByState", func(t *testing.T) {
		cases, err := repo.ListCasesByState(ctx, tenantID, domain.KindCancellation, domain.StateGracePeriod)
		if err != nil {
			t.Fatalf("ListCasesByState failed: %v", err)
		}
		if len(cases) != 3 {
			t.Errorf("expected 3 cases, got %d", len(cases))
		}
	})

	t.Run("ListByParty", func(t *testing.T) {
		cases, err := repo.ListCasesByParty(ctx, tenantID, domain.KindDispute, "phys-001", domain.RolePhysician)
		if err != nil {
			t.Fatalf("ListCasesByParty failed: %v", err)
		}
		if len(cases) != 1 {
			t.Errorf("expected 1 dispute case, got %d", len(cases))
		}
	})

	t.Run("CountSince", func(t *testing.T) {
		count, err := repo.CountCasesByPartySince(ctx, tenantID, domain.KindCancellation, "phys-001", domain.RolePhysician, now.Add(30*time.Second))
		if err != nil {
			t.Fatalf("CountCasesByPartySince failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 cases since cutoff, got %d", count)
		}
	})

	t.Run("ListTenants", func(t *testing.T) {
		tenants, err := repo.ListTenants(ctx)
		if err != nil {
			t.Fatalf("ListTenants failed: %v", err)
		}
		if len(tenants) != 1 || tenants[0] != tenantID {
			t.Errorf("expected [%s], got %v", tenantID, tenants)
		}
	})
}

func TestPolicyStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	policy := &domain.Policy{
		ID:           "policy-001",
		TenantID:     tenantID,
		AssignmentID: "assignment-001",
		Version:      1,
		Windows: []domain.PolicyWindow{
			{ThresholdDays: 30, PenaltyPercentage: 0},
			{ThresholdDays: 14, PenaltyPercentage: 25},
			{ThresholdDays: 0, PenaltyPercentage: 100},
		},
		GracePeriodHours: 24,
		Symmetric:        true,
		CreatedAt:        now,
	}

	t.Run("SaveAndGetLatest", func(t *testing.T) {
		if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
			t.Fatalf("SavePolicy failed: %v", err)
		}

		v2 := *policy
		v2.Version = 2
		v2.Windows = append([]domain.PolicyWindow{{ThresholdDays: 60, PenaltyPercentage: 0}}, policy.Windows[1:]...)
		if err := repo.SavePolicy(ctx, tenantID, &v2); err != nil {
			t.Fatalf("SavePolicy v2 failed: %v", err)
		}

		got, err := repo.GetPolicy(ctx, tenantID, "assignment-001")
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("expected latest version 2, got %d", got.Version)
		}
		if len(got.Windows) != 3 {
			t.Errorf("expected 3 windows, got %d", len(got.Windows))
		}
	})

	t.Run("AcceptedVersionImmutable", func(t *testing.T) {
		accepted := *policy
		acceptedAt := now
		accepted.AcceptedAt = &acceptedAt
		if err := repo.SavePolicy(ctx, tenantID, &accepted); err != nil {
			t.Fatalf("SavePolicy accept failed: %v", err)
		}

		edit := *policy
		edit.GracePeriodHours = 48
		if err := repo.SavePolicy(ctx, tenantID, &edit); err == nil {
			t.Error("expected error editing accepted policy version")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetPolicy(ctx, tenantID, "no-such-assignment")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestInvoiceSweepQuery(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	c := testCancellationCase("case-v1", tenantID, now)
	c.Kind = domain.KindViolation
	c.State = domain.StateConfirmed
	c.Cancellation = nil
	c.Violation = &domain.ViolationDetails{
		Type:          "off_platform_contact",
		Description:   "direct hire outreach after introduction",
		PenaltyAmount: 5000,
	}
	if err := repo.CreateCase(ctx, tenantID, c); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	mkInvoice := func(id string, due time.Time, status domain.InvoiceStatus) *domain.PenaltyInvoice {
		return &domain.PenaltyInvoice{
			ID:        id,
			TenantID:  tenantID,
			CaseID:    c.ID,
			Amount:    5000,
			IssuedAt:  now,
			DueDate:   due,
			Status:    status,
			UpdatedAt: now,
		}
	}

	c.State = domain.StatePenaltyApplied
	err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
		Case:            c,
		ExpectedVersion: 1,
		NewInvoice:      mkInvoice("inv-overdue", now.Add(-48*time.Hour), domain.InvoicePending),
	})
	if err != nil {
		t.Fatalf("ApplyCaseMutation failed: %v", err)
	}

	// A paid invoice and a future invoice should not show up in the sweep.
	if err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
		Case:            c,
		ExpectedVersion: 2,
		NewInvoice:      mkInvoice("inv-paid", now.Add(-48*time.Hour), domain.InvoicePaid),
	}); err != nil {
		t.Fatalf("ApplyCaseMutation failed: %v", err)
	}
	if err := repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
		Case:            c,
		ExpectedVersion: 3,
		NewInvoice:      mkInvoice("inv-future", now.Add(72*time.Hour), domain.InvoicePending),
	}); err != nil {
		t.Fatalf("ApplyCaseMutation failed: %v", err)
	}

	due, err := repo.ListInvoicesDueBefore(ctx, tenantID, now)
	if err != nil {
		t.Fatalf("ListInvoicesDueBefore failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due invoice, got %d", len(due))
	}
	if due[0].ID != "inv-overdue" {
		t.Errorf("expected inv-overdue, got %s", due[0].ID)
	}
}

func TestAbuseFlagStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	flag := &domain.AbuseFlag{
		TenantID:       tenantID,
		UserID:         "phys-001",
		Role:           domain.RolePhysician,
		Kind:           domain.KindDispute,
		TotalCases:     6,
		FrivolousCases: 4,
		MonthlyCases:   2,
		Score:          65,
		Tier:           domain.TierFeeMultiplier,
		UpdatedAt:      now,
	}

	if err := repo.SaveAbuseFlag(ctx, tenantID, flag); err != nil {
		t.Fatalf("SaveAbuseFlag failed: %v", err)
	}

	got, err := repo.GetAbuseFlag(ctx, tenantID, "phys-001", domain.RolePhysician, domain.KindDispute)
	if err != nil {
		t.Fatalf("GetAbuseFlag failed: %v", err)
	}
	if got.Score != 65 {
		t.Errorf("expected score 65, got %.1f", got.Score)
	}
	if got.Tier != domain.TierFeeMultiplier {
		t.Errorf("expected tier %s, got %s", domain.TierFeeMultiplier, got.Tier)
	}

	// Upsert with a ban.
	bannedUntil := now.Add(90 * 24 * time.Hour)
	flag.Score = 95
	flag.Tier = domain.TierTemporaryBan
	flag.BannedUntil = &bannedUntil
	if err := repo.SaveAbuseFlag(ctx, tenantID, flag); err != nil {
		t.Fatalf("SaveAbuseFlag upsert failed: %v", err)
	}

	got, err = repo.GetAbuseFlag(ctx, tenantID, "phys-001", domain.RolePhysician, domain.KindDispute)
	if err != nil {
		t.Fatalf("GetAbuseFlag failed: %v", err)
	}
	if got.BannedUntil == nil {
		t.Fatal("expected banned_until to persist")
	}
	if !got.Banned(now) {
		t.Error("expected flag to report active ban")
	}

	_, err = repo.GetAbuseFlag(ctx, tenantID, "phys-999", domain.RolePhysician, domain.KindDispute)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScreeningRuleStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	upper := 50.0
	rule := &domain.ScreeningRule{
		ID:         "rule-001",
		TenantID:   tenantID,
		Name:       "low-value dispute screen",
		Version:    "1.0",
		Kind:       domain.KindDispute,
		Expression: "escrow_amount < 100.0 ? 80.0 : 10.0",
		Bands: []domain.ScreeningBand{
			{UpperLimit: &upper, Outcome: domain.ScreeningAllow, Reason: "routine filing"},
			{LowerLimit: &upper, Outcome: domain.ScreeningReview, Reason: "low-value dispute"},
		},
		Enabled: true,
	}

	if err := repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
		t.Fatalf("SaveScreeningRule failed: %v", err)
	}

	got, err := repo.GetScreeningRule(ctx, tenantID, "rule-001")
	if err != nil {
		t.Fatalf("GetScreeningRule failed: %v", err)
	}
	if got.Expression != rule.Expression {
		t.Errorf("expression did not round-trip: %s", got.Expression)
	}
	if len(got.Bands) != 2 {
		t.Errorf("expected 2 bands, got %d", len(got.Bands))
	}
	if got.Kind != domain.KindDispute {
		t.Errorf("expected kind %s, got %s", domain.KindDispute, got.Kind)
	}

	rules, err := repo.ListScreeningRules(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListScreeningRules failed: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(rules))
	}

	// Other tenants see nothing.
	rules, err = repo.ListScreeningRules(ctx, "tenant-002")
	if err != nil {
		t.Fatalf("ListScreeningRules failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected no rules for other tenant, got %d", len(rules))
	}
}
