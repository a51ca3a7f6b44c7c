package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locumbnb/enforcement/internal/audit"
	"github.com/locumbnb/enforcement/internal/domain"
)

var systemActor = domain.Party{ID: "system", Role: domain.RoleSystem}

// ExpireGracePeriods moves cancellation cases whose grace window has
// elapsed from grace_period to pending. Idempotent: a case another tick
// already advanced is skipped, and a lost version race is not an error.
func (e *Engine) ExpireGracePeriods(ctx context.Context, tenantID string, now time.Time) (int, error) {
	cases, err := e.repo.ListCasesByState(ctx, tenantID, domain.KindCancellation, domain.StateGracePeriod)
	if err != nil {
		return 0, fmt.Errorf("failed to list grace-period cases: %w", err)
	}

	expired := 0
	for _, c := range cases {
		if c.Cancellation == nil || c.Cancellation.GraceExpiresAt == nil {
			continue
		}
		if now.Before(*c.Cancellation.GraceExpiresAt) {
			continue
		}

		from := c.State
		expectedVersion := c.Version
		c.State = domain.StatePending
		c.UpdatedAt = now
		c.Audit = audit.Append(c.Audit, audit.NewEntry(domain.ActionGraceElapsed, systemActor,
			"grace period elapsed, case pending admin review",
			audit.TransitionMetadata(from, domain.StatePending)))

		err := e.repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            c,
			ExpectedVersion: expectedVersion,
		})
		if errors.Is(err, domain.ErrStaleVersion) || errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("failed to expire grace period on case %s: %w", c.ID, err)
		}

		expired++
		e.publish(ctx, tenantID, domain.TopicCaseTransitioned, c)
	}

	if expired > 0 {
		e.logger.Info("grace periods expired", "tenant_id", tenantID, "count", expired)
	}
	return expired, nil
}

// SweepInvoices advances unpaid invoices past their due date: pending
// becomes overdue, and anything unpaid CollectionsGraceDays past due moves
// to in_collection. Safe to run concurrently and repeatedly.
func (e *Engine) SweepInvoices(ctx context.Context, tenantID string, now time.Time) (int, error) {
	invoices, err := e.repo.ListInvoicesDueBefore(ctx, tenantID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due invoices: %w", err)
	}

	updated := 0
	for _, invoice := range invoices {
		target := invoice.Status
		collectionsAt := invoice.DueDate.AddDate(0, 0, e.cfg.CollectionsGraceDays)

		if !now.Before(collectionsAt) {
			target = domain.InvoiceInCollection
		} else if invoice.Status == domain.InvoicePending {
			target = domain.InvoiceOverdue
		}
		if target == invoice.Status {
			continue
		}

		c, err := e.repo.GetCase(ctx, tenantID, invoice.CaseID)
		if err != nil {
			e.logger.Warn("invoice sweep skipped orphan invoice",
				"tenant_id", tenantID,
				"invoice_id", invoice.ID,
				"error", err)
			continue
		}

		action := domain.ActionInvoiceOverdue
		details := "invoice past due"
		if target == domain.InvoiceInCollection {
			action = domain.ActionSentToCollection
			details = fmt.Sprintf("invoice unpaid %d days past due, sent to collections", e.cfg.CollectionsGraceDays)
		}

		expectedVersion := c.Version
		invoice.Status = target
		invoice.UpdatedAt = now
		c.UpdatedAt = now
		c.Audit = audit.Append(c.Audit, audit.NewEntry(action, systemActor, details,
			map[string]string{"invoiceId": invoice.ID, "invoiceStatus": string(target)}))

		err = e.repo.ApplyCaseMutation(ctx, tenantID, &domain.CaseMutation{
			Case:            c,
			ExpectedVersion: expectedVersion,
			UpdateInvoice:   invoice,
		})
		if errors.Is(err, domain.ErrStaleVersion) {
			continue
		}
		if err != nil {
			return updated, fmt.Errorf("failed to update invoice %s: %w", invoice.ID, err)
		}

		updated++
		e.publish(ctx, tenantID, domain.TopicInvoiceUpdated, invoice)
	}

	if updated > 0 {
		e.logger.Info("invoices swept", "tenant_id", tenantID, "count", updated)
	}
	return updated, nil
}

// SweepAll runs both sweeps for every tenant with cases. Used by the
// background worker tick.
func (e *Engine) SweepAll(ctx context.Context, now time.Time) error {
	tenants, err := e.repo.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, tenantID := range tenants {
		if _, err := e.ExpireGracePeriods(ctx, tenantID, now); err != nil {
			e.logger.Error("grace-period sweep failed", "tenant_id", tenantID, "error", err)
		}
		if _, err := e.SweepInvoices(ctx, tenantID, now); err != nil {
			e.logger.Error("invoice sweep failed", "tenant_id", tenantID, "error", err)
		}
	}
	return nil
}
