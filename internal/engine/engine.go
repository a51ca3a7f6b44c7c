// Package engine orchestrates the enforcement workflows: cancellation
// penalty adjudication, circumvention violation enforcement, and dispute
// resolution. Every operation applies its state change, derived artifact,
// and audit entry as one atomic case mutation; bus events are published
// after commit and never roll a decision back.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/locumbnb/enforcement/internal/abuse"
	"github.com/locumbnb/enforcement/internal/audit"
	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/lifecycle"
	"github.com/locumbnb/enforcement/internal/policy"
	"github.com/locumbnb/enforcement/internal/screening"
)

// Engine is the enforcement orchestrator.
type Engine struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	screener *screening.Engine
	scorer   *abuse.Scorer
	cfg      domain.EnforcementConfig
	logger   *slog.Logger

	now func() time.Time
}

// New creates an enforcement engine. The screener may be nil when no
// screening rules are configured.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener *screening.Engine, scorer *abuse.Scorer, cfg domain.EnforcementConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		screener: screener,
		scorer:   scorer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Cancellation transition actions.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionWithdraw = "withdraw"
)

// CancellationInput holds the fields of a cancellation case submission.
type CancellationInput struct {
	AssignmentID    string
	ContractID      string
	Initiator       domain.Party
	Respondent      domain.Party
	Reason          string
	StartDate       time.Time
	AssignmentValue float64

	// Policy is saved for the assignment when provided; otherwise the
	// stored policy is used. There is no hidden default.
	Policy *domain.Policy
}

// CreateCancellationCase opens a cancellation case. The case starts in
// grace_period when the governing policy has a grace window, otherwise it
// goes straight to pending review.
func (e *Engine) CreateCancellationCase(ctx context.Context, tenantID string, in *CancellationInput) (*domain.Case, error) {
	if err := validateCancellationInput(in); err != nil {
		return nil, err
	}

	pol, err := e.resolvePolicy(ctx, tenantID, in)
	if err != nil {
		return nil, err
	}

	now := e.now()
	c := &domain.Case{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Kind:         domain.KindCancellation,
		AssignmentID: in.AssignmentID,
		Initiator:    in.Initiator,
		Respondent:   in.Respondent,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Cancellation: &domain.CancellationDetails{
			ContractID:      in.ContractID,
			Reason:          in.Reason,
			StartDate:       in.StartDate,
			AssignmentValue: in.AssignmentValue,
			PolicyVersion:   pol.Version,
		},
	}

	if pol.GracePeriodHours > 0 {
		c.State = domain.StateGracePeriod
		expires := now.Add(time.Duration(pol.GracePeriodHours) * time.Hour)
		c.Cancellation.GraceExpiresAt = &expires
	} else {
		c.State = domain.StatePending
	}

	entry := audit.NewEntry(domain.ActionCaseCreated, in.Initiator,
		fmt.Sprintf("cancellation requested for assignment %s: %s", in.AssignmentID, in.Reason), nil)
	c.Audit = audit.Append(nil, entry)

	if err := e.repo.CreateCase(ctx, tenantID, c); err != nil {
		return nil, fmt.Errorf("failed to create cancellation case: %w", err)
	}

	e.logger.Info("cancellation case created",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"assignment_id", in.AssignmentID,
		"state", c.State)
	e.publish(ctx, tenantID, domain.TopicCaseCreated, c)

	return c, nil
}

// TransitionCancellationCase applies approve, reject, or withdraw. Approval
// computes the penalty from the assignment policy and emits exactly one
// pending PenaltyCharge.
func (e *Engine) TransitionCancellationCase(ctx context.Context, tenantID, caseID, action string, actor domain.Party, notes string) (*domain.Case, error) {
	c, err := e.getCaseOfKind(ctx, tenantID, caseID, domain.KindCancellation)
	if err != nil {
		return nil, err
	}

	var to domain.State
	switch action {
	case ActionApprove:
		to = domain.StateApproved
	case ActionReject:
		to = domain.StateRejected
	case ActionWithdraw:
		to = domain.StateWithdrawn
	default:
		return nil, domain.NewValidationError("action", fmt.Sprintf("unknown cancellation action %q", action))
	}

	switch action {
	case ActionApprove, ActionReject:
		if actor.Role != domain.RoleAdmin {
			return nil, domain.NewValidationError("actor", "approve and reject require an admin actor")
		}
	case ActionWithdraw:
		if actor.ID != c.Initiator.ID {
			return nil, domain.NewValidationError("actor", "only the initiating party may withdraw")
		}
	}

	if err := lifecycle.Cancellation.Validate(c, to); err != nil {
		return nil, err
	}

	now := e.now()
	from := c.State
	expectedVersion := c.Version
	mutation := &domain.CaseMutation{Case: c, ExpectedVersion: expectedVersion}
	metadata := audit.TransitionMetadata(from, to)

	if action == ActionApprove {
		charge, err := e.buildPenaltyCharge(ctx, tenantID, c, now)
		if err != nil {
			return nil, err
		}
		mutation.NewCharge = charge
		c.Cancellation.ChargeID = charge.ID
		metadata["chargeId"] = charge.ID
	}

	c.State = to
	c.UpdatedAt = now
	details := notes
	if details == "" {
		details = fmt.Sprintf("cancellation case %s", action)
	}
	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionStateTransition, actor, details, metadata))

	if lifecycle.Cancellation.IsTerminal(to) {
		if flag := e.adjustedFlag(ctx, tenantID, c, from); flag != nil {
			mutation.UpdateFlag = flag
		}
	}

	if err := e.repo.ApplyCaseMutation(ctx, tenantID, mutation); err != nil {
		return nil, err
	}
	e.scorer.InvalidateFlag(ctx, tenantID, c.Initiator.ID, c.Initiator.Role, c.Kind)

	e.logger.Info("cancellation case transitioned",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"from", from,
		"to", to,
		"actor", actor.ID)
	e.publish(ctx, tenantID, domain.TopicCaseTransitioned, c)
	if mutation.NewCharge != nil {
		e.publish(ctx, tenantID, domain.TopicChargeCreated, mutation.NewCharge)
	}

	return c, nil
}

// WaivePenaltyCharge marks a pending or charged penalty as waived. One-way;
// a reason and an admin actor are required. The waiver is recorded on the
// case audit trail even though the case itself stays in its terminal state.
func (e *Engine) WaivePenaltyCharge(ctx context.Context, tenantID, chargeID string, actor domain.Party, reason string) (*domain.PenaltyCharge, error) {
	if reason == "" {
		return nil, domain.NewValidationError("reason", "a waive reason is required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, domain.NewValidationError("actor", "waiving requires an admin actor")
	}

	charge, err := e.repo.GetPenaltyCharge(ctx, tenantID, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.Status == domain.ChargeWaived {
		return nil, &domain.StateConflictError{
			CaseID: charge.CaseID,
			Reason: "charge is already waived",
		}
	}
	if charge.Status == domain.ChargeRefunded {
		return nil, &domain.StateConflictError{
			CaseID: charge.CaseID,
			Reason: "a refunded charge cannot be waived",
		}
	}

	c, err := e.getCaseOfKind(ctx, tenantID, charge.CaseID, domain.KindCancellation)
	if err != nil {
		return nil, err
	}

	now := e.now()
	charge.Status = domain.ChargeWaived
	charge.WaiveReason = reason
	charge.WaivedBy = actor.ID
	charge.UpdatedAt = now

	expectedVersion := c.Version
	c.UpdatedAt = now
	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionChargeWaived, actor, reason,
		map[string]string{"chargeId": charge.ID}))

	err = e.repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
		Case:            c,
		ExpectedVersion: expectedVersion,
		UpdateCharge:    charge,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("penalty charge waived",
		"tenant_id", tenantID,
		"charge_id", charge.ID,
		"case_id", charge.CaseID,
		"actor", actor.ID)
	e.publish(ctx, tenantID, domain.TopicChargeWaived, charge)

	return charge, nil
}

// buildPenaltyCharge runs the penalty calculator for an approved
// cancellation and records the outcome on the case details.
func (e *Engine) buildPenaltyCharge(ctx context.Context, tenantID string, c *domain.Case, now time.Time) (*domain.PenaltyCharge, error) {
	pol, err := e.repo.GetPolicy(ctx, tenantID, c.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy for assignment %s: %w", c.AssignmentID, err)
	}

	// Penalty timing is anchored to when the cancellation was requested,
	// not when an admin got around to approving it.
	result := policy.CalculatePenalty(pol, c.Cancellation.StartDate, c.CreatedAt, c.Cancellation.AssignmentValue)
	if result.Fallback {
		e.logger.Warn("no policy window matched, most restrictive applied",
			"tenant_id", tenantID,
			"case_id", c.ID,
			"days_before_start", result.DaysBeforeStart)
	}

	c.Cancellation.PenaltyPercentage = result.PenaltyPercentage
	c.Cancellation.PenaltyAmount = result.PenaltyAmount
	c.Cancellation.DaysBeforeStart = result.DaysBeforeStart

	return &domain.PenaltyCharge{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		CaseID:     c.ID,
		ChargedTo:  c.Initiator,
		Amount:     result.PenaltyAmount,
		Percentage: result.PenaltyPercentage,
		Status:     domain.ChargePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (e *Engine) resolvePolicy(ctx context.Context, tenantID string, in *CancellationInput) (*domain.Policy, error) {
	if in.Policy != nil {
		pol := in.Policy
		if res := policy.ValidateWindows(pol.Windows); !res.Valid {
			return nil, domain.NewValidationError("policy.windows", res.Errors[0])
		}
		if pol.ID == "" {
			pol.ID = uuid.New().String()
		}
		if pol.Version == 0 {
			pol.Version = 1
		}
		pol.TenantID = tenantID
		pol.AssignmentID = in.AssignmentID
		if pol.CreatedAt.IsZero() {
			pol.CreatedAt = e.now()
		}
		if err := e.repo.SavePolicy(ctx, tenantID, pol); err != nil {
			return nil, fmt.Errorf("failed to save policy: %w", err)
		}
		return pol, nil
	}

	pol, err := e.repo.GetPolicy(ctx, tenantID, in.AssignmentID)
	if err != nil {
		return nil, domain.NewValidationError("policy", fmt.Sprintf("no policy for assignment %s", in.AssignmentID))
	}
	return pol, nil
}

// adjustedFlag folds the case's new terminal outcome into a freshly
// computed abuse aggregate so the flag can be written atomically with the
// transition. The repository scan still reflects the pre-transition row.
func (e *Engine) adjustedFlag(ctx context.Context, tenantID string, c *domain.Case, from domain.State) *domain.AbuseFlag {
	flag, err := e.scorer.Compute(ctx, tenantID, c.Initiator.ID, c.Initiator.Role, c.Kind)
	if err != nil {
		e.logger.Warn("abuse flag recompute failed",
			"tenant_id", tenantID,
			"case_id", c.ID,
			"error", err)
		return nil
	}

	pre := *c
	pre.State = from
	if abuse.Frivolous(c) && !abuse.Frivolous(&pre) {
		flag.FrivolousCases++
	}
	e.scorer.Rescore(flag)
	return flag
}

func (e *Engine) getCaseOfKind(ctx context.Context, tenantID, caseID string, kind domain.CaseKind) (*domain.Case, error) {
	c, err := e.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, domain.NewValidationError("caseId", fmt.Sprintf("case %s is not a %s case", caseID, kind))
	}
	return c, nil
}

// publish serializes and sends an event. Delivery failure is logged and
// swallowed; the committed decision stands.
func (e *Engine) publish(ctx context.Context, tenantID, topic string, payload any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("event payload marshal failed", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, tenantID, topic, data); err != nil {
		e.logger.Warn("event publish failed",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err)
	}
}

func validateCancellationInput(in *CancellationInput) error {
	if in == nil {
		return domain.NewValidationError("", "request body is required")
	}
	if in.AssignmentID == "" {
		return domain.NewValidationError("assignmentId", "assignmentId is required")
	}
	if in.ContractID == "" {
		return domain.NewValidationError("contractId", "contractId is required")
	}
	if in.Initiator.ID == "" || in.Initiator.Role == "" {
		return domain.NewValidationError("initiator", "initiator id and role are required")
	}
	if in.Respondent.ID == "" || in.Respondent.Role == "" {
		return domain.NewValidationError("respondent", "respondent id and role are required")
	}
	if in.Reason == "" {
		return domain.NewValidationError("reason", "a cancellation reason is required")
	}
	if in.StartDate.IsZero() {
		return domain.NewValidationError("startDate", "assignment start date is required")
	}
	if in.AssignmentValue < 0 {
		return domain.NewValidationError("assignmentValue", "assignment value cannot be negative")
	}
	return nil
}
