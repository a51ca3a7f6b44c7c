package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/locumbnb/enforcement/internal/audit"
	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/lifecycle"
	"github.com/locumbnb/enforcement/internal/screening"
)

// Dispute transition actions.
const (
	ActionReview = "review"
	ActionClose  = "close"
)

// DisputeInput holds the fields of a dispute filing.
type DisputeInput struct {
	Initiator    domain.Party
	Respondent   domain.Party
	Type         string
	Subject      string
	Description  string
	EscrowAmount float64
}

// DisputeResolution holds the terminal resolution of a dispute.
type DisputeResolution struct {
	Outcome      domain.DisputeOutcome
	Resolution   string
	FeeRefunded  bool
	EscrowAction domain.EscrowAction
	Actor        domain.Party
}

// CreateDisputeCase files a dispute. The abuse gate runs first (a banned
// party is rejected before any fee quote), then tenant screening rules.
// Every created dispute is escalated immediately; "open" never survives
// creation.
func (e *Engine) CreateDisputeCase(ctx context.Context, tenantID string, in *DisputeInput) (*domain.Case, error) {
	if err := e.validateDisputeInput(in); err != nil {
		return nil, err
	}

	decision, err := e.scorer.CanFileCase(ctx, tenantID, in.Initiator.ID, in.Initiator.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate filing eligibility: %w", err)
	}
	if !decision.Allowed {
		return nil, domain.NewValidationError("initiator", decision.Reason)
	}

	verdict := e.screenDispute(ctx, tenantID, in, decision)
	if verdict.Outcome == domain.ScreeningDeny {
		return nil, domain.NewValidationError("screening",
			fmt.Sprintf("filing blocked by screening rules: %s", strings.Join(verdict.Reasons, "; ")))
	}

	now := e.now()
	escalatedAt := now
	c := &domain.Case{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Kind:       domain.KindDispute,
		Initiator:  in.Initiator,
		Respondent: in.Respondent,
		State:      domain.StateEscalated,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Dispute: &domain.DisputeDetails{
			Type:             in.Type,
			Subject:          in.Subject,
			Description:      in.Description,
			EscrowAmount:     in.EscrowAmount,
			FeeAmount:        decision.FeeAmount,
			EscalatedAt:      &escalatedAt,
			ScreeningOutcome: verdict.Outcome,
		},
	}

	createdMeta := map[string]string{"feeAmount": fmt.Sprintf("%.2f", decision.FeeAmount)}
	if decision.RequiresApproval {
		createdMeta["requiresAdminApproval"] = "true"
	}
	if verdict.Outcome == domain.ScreeningReview {
		createdMeta["screeningOutcome"] = verdict.Outcome
	}
	c.Audit = audit.Append(nil, audit.NewEntry(domain.ActionCaseCreated, in.Initiator,
		fmt.Sprintf("%s dispute filed: %s", in.Type, in.Subject), createdMeta))

	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionAutoEscalated, systemActor,
		"dispute escalated for admin review", audit.TransitionMetadata(domain.StateOpen, domain.StateEscalated)))

	if err := e.repo.CreateCase(ctx, tenantID, c); err != nil {
		return nil, fmt.Errorf("failed to create dispute case: %w", err)
	}

	e.scorer.RecordFiling(ctx, tenantID, in.Initiator.ID, in.Initiator.Role, domain.KindDispute)

	e.logger.Info("dispute case created",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"type", in.Type,
		"fee", decision.FeeAmount,
		"screening", verdict.Outcome)
	e.publish(ctx, tenantID, domain.TopicCaseCreated, c)
	e.publish(ctx, tenantID, domain.TopicDisputeEscalated, c)

	return c, nil
}

// TransitionDisputeCase moves a dispute to under_review or closes it
// without a monetary verdict. Resolution goes through ResolveDisputeCase.
func (e *Engine) TransitionDisputeCase(ctx context.Context, tenantID, caseID, action string, actor domain.Party, notes string) (*domain.Case, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.NewValidationError("actor", "dispute adjudication requires an admin actor")
	}

	var to domain.State
	switch action {
	case ActionReview:
		to = domain.StateUnderReview
	case ActionClose:
		to = domain.StateClosed
	default:
		return nil, domain.NewValidationError("action", fmt.Sprintf("unknown dispute action %q", action))
	}

	c, err := e.getCaseOfKind(ctx, tenantID, caseID, domain.KindDispute)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Dispute.Validate(c, to); err != nil {
		return nil, err
	}

	now := e.now()
	from := c.State
	expectedVersion := c.Version
	mutation := &domain.CaseMutation{Case: c, ExpectedVersion: expectedVersion}

	c.State = to
	c.UpdatedAt = now
	details := notes
	if details == "" {
		details = fmt.Sprintf("dispute case %s", action)
	}
	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionStateTransition, actor, details,
		audit.TransitionMetadata(from, to)))

	if lifecycle.Dispute.IsTerminal(to) {
		if flag := e.adjustedFlag(ctx, tenantID, c, from); flag != nil {
			mutation.UpdateFlag = flag
		}
	}

	if err := e.repo.ApplyCaseMutation(ctx, tenantID, mutation); err != nil {
		return nil, err
	}
	e.scorer.InvalidateFlag(ctx, tenantID, c.Initiator.ID, c.Initiator.Role, c.Kind)

	e.logger.Info("dispute case transitioned",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"from", from,
		"to", to,
		"actor", actor.ID)
	e.publish(ctx, tenantID, domain.TopicCaseTransitioned, c)

	return c, nil
}

// ResolveDisputeCase applies the terminal resolution: outcome verdict, fee
// refund decision, and the escrow directive consumed by the external
// payment collaborator.
func (e *Engine) ResolveDisputeCase(ctx context.Context, tenantID, caseID string, res *DisputeResolution) (*domain.Case, error) {
	if err := validateResolution(res); err != nil {
		return nil, err
	}

	c, err := e.getCaseOfKind(ctx, tenantID, caseID, domain.KindDispute)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Dispute.Validate(c, domain.StateResolved); err != nil {
		return nil, err
	}

	now := e.now()
	from := c.State
	expectedVersion := c.Version
	mutation := &domain.CaseMutation{Case: c, ExpectedVersion: expectedVersion}

	resolvedAt := now
	c.State = domain.StateResolved
	c.UpdatedAt = now
	c.Dispute.Outcome = res.Outcome
	c.Dispute.Resolution = res.Resolution
	c.Dispute.FeeRefunded = res.FeeRefunded
	c.Dispute.EscrowAction = res.EscrowAction
	c.Dispute.ResolvedAt = &resolvedAt

	metadata := audit.TransitionMetadata(from, domain.StateResolved)
	metadata["outcome"] = string(res.Outcome)
	metadata["escrowAction"] = string(res.EscrowAction)
	metadata["feeRefunded"] = fmt.Sprintf("%t", res.FeeRefunded)
	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionResolved, res.Actor, res.Resolution, metadata))

	if flag := e.adjustedFlag(ctx, tenantID, c, from); flag != nil {
		mutation.UpdateFlag = flag
	}

	if err := e.repo.ApplyCaseMutation(ctx, tenantID, mutation); err != nil {
		return nil, err
	}
	e.scorer.InvalidateFlag(ctx, tenantID, c.Initiator.ID, c.Initiator.Role, c.Kind)

	e.logger.Info("dispute case resolved",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"outcome", res.Outcome,
		"escrow_action", res.EscrowAction,
		"fee_refunded", res.FeeRefunded)
	e.publish(ctx, tenantID, domain.TopicCaseTransitioned, c)
	e.publish(ctx, tenantID, domain.TopicDisputeResolved, c)

	return c, nil
}

// CanFileDisputeCase answers the filing-eligibility pre-check without
// creating anything.
func (e *Engine) CanFileDisputeCase(ctx context.Context, tenantID, userID string, role domain.Role) (*domain.FilingDecision, error) {
	if userID == "" || role == "" {
		return nil, domain.NewValidationError("userId", "userId and role are required")
	}
	return e.scorer.CanFileCase(ctx, tenantID, userID, role)
}

func (e *Engine) screenDispute(ctx context.Context, tenantID string, in *DisputeInput, decision *domain.FilingDecision) *screening.Verdict {
	if e.screener == nil {
		return &screening.Verdict{Outcome: domain.ScreeningAllow}
	}

	monthStart := e.now().AddDate(0, -1, 0)
	monthly, err := e.repo.CountCasesByPartySince(ctx, tenantID, domain.KindDispute, in.Initiator.ID, in.Initiator.Role, monthStart)
	if err != nil {
		e.logger.Warn("monthly filing count failed, screening without it",
			"tenant_id", tenantID,
			"initiator", in.Initiator.ID,
			"error", err)
	}

	return e.screener.Screen(&screening.Input{
		TenantID:       tenantID,
		Kind:           domain.KindDispute,
		Amount:         decision.FeeAmount,
		EscrowAmount:   in.EscrowAmount,
		DescriptionLen: len(in.Description),
		EvidenceCount:  0,
		InitiatorID:    in.Initiator.ID,
		InitiatorRole:  in.Initiator.Role,
		AbuseScore:     decision.Score,
		MonthlyFilings: int(monthly),
	})
}

func (e *Engine) validateDisputeInput(in *DisputeInput) error {
	if in == nil {
		return domain.NewValidationError("", "request body is required")
	}
	if in.Initiator.ID == "" || in.Initiator.Role == "" {
		return domain.NewValidationError("initiator", "initiator id and role are required")
	}
	if in.Respondent.ID == "" || in.Respondent.Role == "" {
		return domain.NewValidationError("respondent", "respondent id and role are required")
	}
	if in.Type == "" {
		return domain.NewValidationError("type", "dispute type is required")
	}
	if in.Subject == "" {
		return domain.NewValidationError("subject", "dispute subject is required")
	}
	if len(in.Description) < e.cfg.MinDescriptionLen {
		return domain.NewValidationError("description",
			fmt.Sprintf("description must be at least %d characters", e.cfg.MinDescriptionLen))
	}
	if in.EscrowAmount < 0 {
		return domain.NewValidationError("escrowAmount", "escrow amount cannot be negative")
	}
	return nil
}

func validateResolution(res *DisputeResolution) error {
	if res == nil {
		return domain.NewValidationError("", "request body is required")
	}
	if res.Actor.Role != domain.RoleAdmin {
		return domain.NewValidationError("actor", "dispute resolution requires an admin actor")
	}
	switch res.Outcome {
	case domain.OutcomeFavorInitiator, domain.OutcomeFavorRespondent, domain.OutcomeSplit,
		domain.OutcomeDismissed, domain.OutcomeSettled:
	default:
		return domain.NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", res.Outcome))
	}
	switch res.EscrowAction {
	case domain.EscrowReleaseInitiator, domain.EscrowReleaseRespondent, domain.EscrowSplit, domain.EscrowHold:
	default:
		return domain.NewValidationError("escrowAction", fmt.Sprintf("unknown escrow action %q", res.EscrowAction))
	}
	if res.Resolution == "" {
		return domain.NewValidationError("resolution", "resolution text is required")
	}
	return nil
}
