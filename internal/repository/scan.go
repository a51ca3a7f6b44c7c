package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/locumbnb/enforcement/internal/domain"
)

const caseSelect = `
	SELECT id, tenant_id, kind, assignment_id,
		   initiator_id, initiator_role, respondent_id, respondent_role,
		   state, version, created_at, updated_at, audit, details
	FROM cases
`

const invoiceSelect = `
	SELECT id, tenant_id, case_id, amount, issued_at, due_date,
		   status, amount_paid, paid_at, updated_at
	FROM penalty_invoices
`

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// caseDetails is the kind-keyed payload stored in the details column.
type caseDetails struct {
	Cancellation *domain.CancellationDetails `json:"cancellation,omitempty"`
	Violation    *domain.ViolationDetails    `json:"violation,omitempty"`
	Dispute      *domain.DisputeDetails      `json:"dispute,omitempty"`
}

func marshalDetails(c *domain.Case) ([]byte, error) {
	d := caseDetails{
		Cancellation: c.Cancellation,
		Violation:    c.Violation,
		Dispute:      c.Dispute,
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal case details: %w", err)
	}
	return b, nil
}

func scanCase(s scanner) (*domain.Case, error) {
	var c domain.Case
	var assignmentID sql.NullString
	var auditJSON, detailsJSON string

	err := s.Scan(
		&c.ID, &c.TenantID, &c.Kind, &assignmentID,
		&c.Initiator.ID, &c.Initiator.Role, &c.Respondent.ID, &c.Respondent.Role,
		&c.State, &c.Version, &c.CreatedAt, &c.UpdatedAt,
		&auditJSON, &detailsJSON,
	)
	if err != nil {
		return nil, err
	}

	c.AssignmentID = assignmentID.String
	if err := json.Unmarshal([]byte(auditJSON), &c.Audit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit trail: %w", err)
	}

	var d caseDetails
	if err := json.Unmarshal([]byte(detailsJSON), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case details: %w", err)
	}
	c.Cancellation = d.Cancellation
	c.Violation = d.Violation
	c.Dispute = d.Dispute

	return &c, nil
}

func collectCases(rows *sql.Rows) ([]*domain.Case, error) {
	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func scanInvoice(s scanner) (*domain.PenaltyInvoice, error) {
	var inv domain.PenaltyInvoice
	var paidAt sql.NullTime

	err := s.Scan(
		&inv.ID, &inv.TenantID, &inv.CaseID, &inv.Amount, &inv.IssuedAt, &inv.DueDate,
		&inv.Status, &inv.AmountPaid, &paidAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	return &inv, nil
}

func insertCharge(ctx context.Context, tx *sql.Tx, r *SQLRepository, tenantID string, c *domain.PenaltyCharge) error {
	query := `
		INSERT INTO penalty_charges (
			id, tenant_id, case_id, charged_to_id, charged_to_role,
			amount, percentage, status, waive_reason, waived_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.CaseID, c.ChargedTo.ID, c.ChargedTo.Role,
		c.Amount, c.Percentage, c.Status, nullString(c.WaiveReason), nullString(c.WaivedBy),
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func updateCharge(ctx context.Context, tx *sql.Tx, r *SQLRepository, tenantID string, c *domain.PenaltyCharge) error {
	query := `
		UPDATE penalty_charges
		SET status = ?, waive_reason = ?, waived_by = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`
	res, err := tx.ExecContext(ctx, r.rebind(query),
		c.Status, nullString(c.WaiveReason), nullString(c.WaivedBy), c.UpdatedAt,
		tenantID, c.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func insertInvoice(ctx context.Context, tx *sql.Tx, r *SQLRepository, tenantID string, inv *domain.PenaltyInvoice) error {
	var paidAt sql.NullTime
	if inv.PaidAt != nil {
		paidAt = sql.NullTime{Time: *inv.PaidAt, Valid: true}
	}

	query := `
		INSERT INTO penalty_invoices (
			id, tenant_id, case_id, amount, issued_at, due_date,
			status, amount_paid, paid_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		inv.ID, tenantID, inv.CaseID, inv.Amount, inv.IssuedAt, inv.DueDate,
		inv.Status, inv.AmountPaid, paidAt, inv.UpdatedAt,
	)
	return err
}

func updateInvoice(ctx context.Context, tx *sql.Tx, r *SQLRepository, tenantID string, inv *domain.PenaltyInvoice) error {
	var paidAt sql.NullTime
	if inv.PaidAt != nil {
		paidAt = sql.NullTime{Time: *inv.PaidAt, Valid: true}
	}

	query := `
		UPDATE penalty_invoices
		SET status = ?, amount_paid = ?, paid_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`
	res, err := tx.ExecContext(ctx, r.rebind(query),
		inv.Status, inv.AmountPaid, paidAt, inv.UpdatedAt,
		tenantID, inv.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func upsertFlag(ctx context.Context, tx *sql.Tx, r *SQLRepository, tenantID string, f *domain.AbuseFlag) error {
	var bannedUntil sql.NullTime
	if f.BannedUntil != nil {
		bannedUntil = sql.NullTime{Time: *f.BannedUntil, Valid: true}
	}

	query := `
		INSERT INTO abuse_flags (
			tenant_id, user_id, role, kind,
			total_cases, frivolous_cases, monthly_cases,
			score, tier, banned_until, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, role, kind) DO UPDATE SET
			total_cases = excluded.total_cases,
			frivolous_cases = excluded.frivolous_cases,
			monthly_cases = excluded.monthly_cases,
			score = excluded.score,
			tier = excluded.tier,
			banned_until = excluded.banned_until,
			updated_at = excluded.updated_at
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		tenantID, f.UserID, f.Role, f.Kind,
		f.TotalCases, f.FrivolousCases, f.MonthlyCases,
		f.Score, f.Tier, bannedUntil, f.UpdatedAt,
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("no rows affected")
	}
	return nil
}
