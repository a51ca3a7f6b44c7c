package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/locumbnb/enforcement/internal/audit"
	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/lifecycle"
)

// Violation transition actions.
const (
	ActionInvestigate       = "investigate"
	ActionConfirm           = "confirm"
	ActionDismiss           = "dismiss"
	ActionIssueInvoice      = "issue_invoice"
	ActionRecordPayment     = "record_payment"
	ActionSendToCollections = "send_to_collections"
)

// ViolationInput holds the fields of a circumvention violation report.
type ViolationInput struct {
	Reporter       domain.Party
	Violator       domain.Party
	RelatedPartyID string
	Type           string
	Description    string
	Evidence       []string
	AssignmentID   string
}

// ViolationTransition holds the adjudication request for a violation case.
type ViolationTransition struct {
	Action string
	Actor  domain.Party
	Notes  string

	// PaymentAmount applies to record_payment only.
	PaymentAmount float64
}

// ReportViolation opens a violation case in pending_review. The penalty
// amount is fixed from enforcement settings at creation and never
// recomputed.
func (e *Engine) ReportViolation(ctx context.Context, tenantID string, in *ViolationInput) (*domain.Case, error) {
	if err := e.validateViolationInput(in); err != nil {
		return nil, err
	}

	now := e.now()
	c := &domain.Case{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Kind:         domain.KindViolation,
		AssignmentID: in.AssignmentID,
		Initiator:    in.Reporter,
		Respondent:   in.Violator,
		State:        domain.StatePendingReview,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Violation: &domain.ViolationDetails{
			Type:           in.Type,
			Description:    in.Description,
			Evidence:       in.Evidence,
			RelatedPartyID: in.RelatedPartyID,
			PenaltyAmount:  e.cfg.ViolationPenaltyAmount,
		},
	}

	entry := audit.NewEntry(domain.ActionCaseCreated, in.Reporter,
		fmt.Sprintf("%s violation reported against %s", in.Type, in.Violator.ID), nil)
	c.Audit = audit.Append(nil, entry)

	if err := e.repo.CreateCase(ctx, tenantID, c); err != nil {
		return nil, fmt.Errorf("failed to create violation case: %w", err)
	}

	e.logger.Info("violation reported",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"type", in.Type,
		"violator", in.Violator.ID)
	e.publish(ctx, tenantID, domain.TopicCaseCreated, c)

	return c, nil
}

// TransitionViolationCase adjudicates a violation. Confirmation and
// invoicing are separate transitions; payment recording and collections
// mutate the invoice while the case stays penalty_applied.
func (e *Engine) TransitionViolationCase(ctx context.Context, tenantID, caseID string, req *ViolationTransition) (*domain.Case, error) {
	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}
	if req.Actor.Role != domain.RoleAdmin {
		return nil, domain.NewValidationError("actor", "violation adjudication requires an admin actor")
	}

	c, err := e.getCaseOfKind(ctx, tenantID, caseID, domain.KindViolation)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionInvestigate:
		return e.transitionViolation(ctx, tenantID, c, domain.StateUnderInvestigation, req, nil)
	case ActionConfirm:
		return e.transitionViolation(ctx, tenantID, c, domain.StateConfirmed, req, nil)
	case ActionDismiss:
		return e.transitionViolation(ctx, tenantID, c, domain.StateDismissed, req, nil)
	case ActionIssueInvoice:
		return e.issueInvoice(ctx, tenantID, c, req)
	case ActionRecordPayment:
		return e.recordPayment(ctx, tenantID, c, req)
	case ActionSendToCollections:
		return e.sendToCollections(ctx, tenantID, c, req)
	default:
		return nil, domain.NewValidationError("action", fmt.Sprintf("unknown violation action %q", req.Action))
	}
}

func (e *Engine) transitionViolation(ctx context.Context, tenantID string, c *domain.Case, to domain.State, req *ViolationTransition, mutate func(m *domain.CaseMutation)) (*domain.Case, error) {
	if err := lifecycle.Violation.Validate(c, to); err != nil {
		return nil, err
	}

	now := e.now()
	from := c.State
	expectedVersion := c.Version
	mutation := &domain.CaseMutation{Case: c, ExpectedVersion: expectedVersion}

	c.State = to
	c.UpdatedAt = now
	details := req.Notes
	if details == "" {
		details = fmt.Sprintf("violation case %s", req.Action)
	}
	c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionStateTransition, req.Actor, details,
		audit.TransitionMetadata(from, to)))

	if mutate != nil {
		mutate(mutation)
	}

	if lifecycle.Violation.IsTerminal(to) {
		if flag := e.adjustedFlag(ctx, tenantID, c, from); flag != nil {
			mutation.UpdateFlag = flag
		}
	}

	if err := e.repo.ApplyCaseMutation(ctx, tenantID, mutation); err != nil {
		return nil, err
	}
	e.scorer.InvalidateFlag(ctx, tenantID, c.Initiator.ID, c.Initiator.Role, c.Kind)

	e.logger.Info("violation case transitioned",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"from", from,
		"to", to,
		"actor", req.Actor.ID)
	e.publish(ctx, tenantID, domain.TopicCaseTransitioned, c)

	return c, nil
}

func (e *Engine) issueInvoice(ctx context.Context, tenantID string, c *domain.Case, req *ViolationTransition) (*domain.Case, error) {
	now := e.now()
	invoice := &domain.PenaltyInvoice{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CaseID:    c.ID,
		Amount:    c.Violation.PenaltyAmount,
		IssuedAt:  now,
		DueDate:   now.AddDate(0, 0, e.cfg.InvoiceTermDays),
		Status:    domain.InvoicePending,
		UpdatedAt: now,
	}

	c.Violation.InvoiceID = invoice.ID
	result, err := e.transitionViolation(ctx, tenantID, c, domain.StatePenaltyApplied, req, func(m *domain.CaseMutation) {
		m.NewInvoice = invoice
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, tenantID, domain.TopicInvoiceIssued, invoice)
	return result, nil
}

// recordPayment marks the invoice paid once payments cover the amount. The
// case state is already terminal; only the invoice and the audit trail
// change.
func (e *Engine) recordPayment(ctx context.Context, tenantID string, c *domain.Case, req *ViolationTransition) (*domain.Case, error) {
	if req.PaymentAmount <= 0 {
		return nil, domain.NewValidationError("paymentAmount", "payment amount must be positive")
	}

	invoice, err := e.invoiceForCase(ctx, tenantID, c)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoicePaid || invoice.Status == domain.InvoiceWaived {
		return nil, &domain.StateConflictError{
			CaseID: c.ID,
			Reason: fmt.Sprintf("invoice is already %s", invoice.Status),
		}
	}

	now := e.now()
	invoice.AmountPaid += req.PaymentAmount
	invoice.UpdatedAt = now
	if invoice.AmountPaid >= invoice.Amount {
		invoice.Status = domain.InvoicePaid
		paidAt := now
		invoice.PaidAt = &paidAt
	}

	return e.updateInvoiceOnCase(ctx, tenantID, c, invoice, domain.ActionPaymentRecorded, req.Actor,
		fmt.Sprintf("payment of %.2f recorded, %.2f of %.2f paid", req.PaymentAmount, invoice.AmountPaid, invoice.Amount))
}

func (e *Engine) sendToCollections(ctx context.Context, tenantID string, c *domain.Case, req *ViolationTransition) (*domain.Case, error) {
	invoice, err := e.invoiceForCase(ctx, tenantID, c)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoicePaid || invoice.Status == domain.InvoiceWaived {
		return nil, &domain.StateConflictError{
			CaseID: c.ID,
			Reason: fmt.Sprintf("invoice is already %s", invoice.Status),
		}
	}
	if invoice.Status == domain.InvoiceInCollection {
		return c, nil
	}

	invoice.Status = domain.InvoiceInCollection
	invoice.UpdatedAt = e.now()

	return e.updateInvoiceOnCase(ctx, tenantID, c, invoice, domain.ActionSentToCollection, req.Actor,
		"invoice sent to collections")
}

func (e *Engine) invoiceForCase(ctx context.Context, tenantID string, c *domain.Case) (*domain.PenaltyInvoice, error) {
	if c.Violation == nil || c.Violation.InvoiceID == "" {
		return nil, &domain.StateConflictError{
			CaseID: c.ID,
			Reason: "no invoice has been issued for this case",
		}
	}
	return e.repo.GetPenaltyInvoice(ctx, tenantID, c.Violation.InvoiceID)
}

// updateInvoiceOnCase commits an invoice status change together with its
// audit entry under the case's optimistic version check.
func (e *Engine) updateInvoiceOnCase(ctx context.Context, tenantID string, c *domain.Case, invoice *domain.PenaltyInvoice, action string, actor domain.Party, details string) (*domain.Case, error) {
	expectedVersion := c.Version
	c.UpdatedAt = e.now()
	c.Audit = audit.Append(c.Audit, audit.NewEntry(action, actor, details,
		map[string]string{"invoiceId": invoice.ID, "invoiceStatus": string(invoice.Status)}))

	err := e.repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
		Case:            c,
		ExpectedVersion: expectedVersion,
		UpdateInvoice:   invoice,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("penalty invoice updated",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"invoice_id", invoice.ID,
		"status", invoice.Status)
	e.publish(ctx, tenantID, domain.TopicInvoiceUpdated, invoice)

	return c, nil
}

func (e *Engine) validateViolationInput(in *ViolationInput) error {
	if in == nil {
		return domain.NewValidationError("", "request body is required")
	}
	if in.Reporter.ID == "" || in.Reporter.Role == "" {
		return domain.NewValidationError("reporter", "reporter id and role are required")
	}
	if in.Violator.ID == "" || in.Violator.Role == "" {
		return domain.NewValidationError("violator", "violator id and role are required")
	}
	if in.Type == "" {
		return domain.NewValidationError("type", "violation type is required")
	}
	if len(in.Description) < e.cfg.MinDescriptionLen {
		return domain.NewValidationError("description",
			fmt.Sprintf("description must be at least %d characters", e.cfg.MinDescriptionLen))
	}
	return nil
}
