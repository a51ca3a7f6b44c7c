// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrStaleVersion = domain.ErrStaleVersion
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateCase stores a new case with its initial audit trail.
func (r *SQLRepository) CreateCase(ctx context.Context, tenantID string, c *domain.Case) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	auditJSON, err := json.Marshal(c.Audit)
	if err != nil {
		return fmt.Errorf("failed to marshal audit trail: %w", err)
	}
	detailsJSON, err := marshalDetails(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cases (
			id, tenant_id, kind, assignment_id,
			initiator_id, initiator_role, respondent_id, respondent_role,
			state, version, created_at, updated_at, audit, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Kind, c.AssignmentID,
		c.Initiator.ID, c.Initiator.Role, c.Respondent.ID, c.Respondent.Role,
		c.State, c.Version, c.CreatedAt, c.UpdatedAt,
		string(auditJSON), string(detailsJSON),
	)
	return err
}

// GetCase retrieves a case by ID with tenant isolation.
func (r *SQLRepository) GetCase(ctx context.Context, tenantID string, caseID string) (*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := caseSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ApplyCaseMutation commits a lifecycle transition and its derived
// artifacts in one database transaction. The case row is updated only if
// the stored version still equals ExpectedVersion; a concurrent writer
// winning the race surfaces as ErrStaleVersion and nothing is applied.
func (r *SQLRepository) ApplyCaseMutation(ctx context.Context, tenantID string, m *domain.CaseMutation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if m == nil || m.Case == nil {
		return fmt.Errorf("%w: mutation case is required", ErrInvalidInput)
	}

	auditJSON, err := json.Marshal(m.Case.Audit)
	if err != nil {
		return fmt.Errorf("failed to marshal audit trail: %w", err)
	}
	detailsJSON, err := marshalDetails(m.Case)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE cases
		SET state = ?, version = version + 1, updated_at = ?, audit = ?, details = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`
	res, err := tx.ExecContext(ctx, r.rebind(query),
		m.Case.State, m.Case.UpdatedAt, string(auditJSON), string(detailsJSON),
		tenantID, m.Case.ID, m.ExpectedVersion,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the case does not exist or a concurrent writer bumped
		// the version first.
		var exists int
		check := `SELECT COUNT(*) FROM cases WHERE tenant_id = ? AND id = ?`
		if err := tx.QueryRowContext(ctx, r.rebind(check), tenantID, m.Case.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrStaleVersion
	}

	if m.NewCharge != nil {
		if err := insertCharge(ctx, tx, r, tenantID, m.NewCharge); err != nil {
			return err
		}
	}
	if m.UpdateCharge != nil {
		if err := updateCharge(ctx, tx, r, tenantID, m.UpdateCharge); err != nil {
			return err
		}
	}
	if m.NewInvoice != nil {
		if err := insertInvoice(ctx, tx, r, tenantID, m.NewInvoice); err != nil {
			return err
		}
	}
	if m.UpdateInvoice != nil {
		if err := updateInvoice(ctx, tx, r, tenantID, m.UpdateInvoice); err != nil {
			return err
		}
	}
	if m.UpdateFlag != nil {
		if err := upsertFlag(ctx, tx, r, tenantID, m.UpdateFlag); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case mutation: %w", err)
	}

	m.Case.Version = m.ExpectedVersion + 1
	return nil
}

// ListCasesByState retrieves all cases of a kind in a given state.
func (r *SQLRepository) ListCasesByState(ctx context.Context, tenantID string, kind domain.CaseKind, state domain.State) ([]*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := caseSelect + ` WHERE tenant_id = ? AND kind = ? AND state = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, kind, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListCasesByParty retrieves all cases of a kind initiated by a party.
func (r *SQLRepository) ListCasesByParty(ctx context.Context, tenantID string, kind domain.CaseKind, partyID string, role domain.Role) ([]*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := caseSelect + `
		WHERE tenant_id = ? AND kind = ? AND initiator_id = ? AND initiator_role = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, kind, partyID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

// CountCasesByPartySince counts cases of a kind a party opened since an
// instant (rolling-window filing counts).
func (r *SQLRepository) CountCasesByPartySince(ctx context.Context, tenantID string, kind domain.CaseKind, partyID string, role domain.Role, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM cases
		WHERE tenant_id = ? AND kind = ? AND initiator_id = ? AND initiator_role = ?
		  AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, kind, partyID, role, since).Scan(&count)
	return count, err
}

// SavePolicy stores a policy version. An accepted policy version is frozen;
// saving over it is rejected so edits require a new version.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, p *domain.Policy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	existing, err := r.getPolicyVersion(ctx, tenantID, p.AssignmentID, p.Version)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Accepted() {
		return fmt.Errorf("%w: policy version %d is accepted and immutable", ErrInvalidInput, p.Version)
	}

	windows, err := json.Marshal(p.Windows)
	if err != nil {
		return fmt.Errorf("failed to marshal windows: %w", err)
	}

	symmetric := 0
	if p.Symmetric {
		symmetric = 1
	}

	var acceptedAt sql.NullTime
	if p.AcceptedAt != nil {
		acceptedAt = sql.NullTime{Time: *p.AcceptedAt, Valid: true}
	}

	query := `
		INSERT INTO policies (
			id, tenant_id, assignment_id, version, windows,
			grace_period_hours, symmetric, accepted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, assignment_id, version) DO UPDATE SET
			windows = excluded.windows,
			grace_period_hours = excluded.grace_period_hours,
			symmetric = excluded.symmetric,
			accepted_at = excluded.accepted_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.AssignmentID, p.Version, string(windows),
		p.GracePeriodHours, symmetric, acceptedAt, p.CreatedAt,
	)
	return err
}

// GetPolicy retrieves the latest policy version for an assignment.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, assignmentID string) (*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, assignment_id, version, windows,
			   grace_period_hours, symmetric, accepted_at, created_at
		FROM policies
		WHERE tenant_id = ? AND assignment_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	return r.scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assignmentID))
}

func (r *SQLRepository) getPolicyVersion(ctx context.Context, tenantID, assignmentID string, version int) (*domain.Policy, error) {
	query := `
		SELECT id, tenant_id, assignment_id, version, windows,
			   grace_period_hours, symmetric, accepted_at, created_at
		FROM policies
		WHERE tenant_id = ? AND assignment_id = ? AND version = ?
	`
	return r.scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assignmentID, version))
}

func (r *SQLRepository) scanPolicy(row *sql.Row) (*domain.Policy, error) {
	var p domain.Policy
	var windows string
	var symmetric int
	var acceptedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.TenantID, &p.AssignmentID, &p.Version, &windows,
		&p.GracePeriodHours, &symmetric, &acceptedAt, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Symmetric = symmetric == 1
	if acceptedAt.Valid {
		t := acceptedAt.Time
		p.AcceptedAt = &t
	}
	if err := json.Unmarshal([]byte(windows), &p.Windows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal windows: %w", err)
	}

	return &p, nil
}

// GetPenaltyCharge retrieves a penalty charge by ID.
func (r *SQLRepository) GetPenaltyCharge(ctx context.Context, tenantID string, chargeID string) (*domain.PenaltyCharge, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, charged_to_id, charged_to_role,
			   amount, percentage, status, waive_reason, waived_by,
			   created_at, updated_at
		FROM penalty_charges
		WHERE tenant_id = ? AND id = ?
	`

	var c domain.PenaltyCharge
	var waiveReason, waivedBy sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, chargeID).Scan(
		&c.ID, &c.TenantID, &c.CaseID, &c.ChargedTo.ID, &c.ChargedTo.Role,
		&c.Amount, &c.Percentage, &c.Status, &waiveReason, &waivedBy,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.WaiveReason = waiveReason.String
	c.WaivedBy = waivedBy.String
	return &c, nil
}

// GetPenaltyInvoice retrieves a penalty invoice by ID.
func (r *SQLRepository) GetPenaltyInvoice(ctx context.Context, tenantID string, invoiceID string) (*domain.PenaltyInvoice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := invoiceSelect + ` WHERE tenant_id = ? AND id = ?`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

// ListInvoicesDueBefore retrieves unpaid invoices whose due date has passed
// as of the given instant, for the overdue/collections sweep.
func (r *SQLRepository) ListInvoicesDueBefore(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.PenaltyInvoice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := invoiceSelect + `
		WHERE tenant_id = ? AND status IN (?, ?) AND due_date <= ?
		ORDER BY due_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, domain.InvoicePending, domain.InvoiceOverdue, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*domain.PenaltyInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetAbuseFlag retrieves the persisted abuse aggregate for a party.
func (r *SQLRepository) GetAbuseFlag(ctx context.Context, tenantID string, userID string, role domain.Role, kind domain.CaseKind) (*domain.AbuseFlag, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, user_id, role, kind,
			   total_cases, frivolous_cases, monthly_cases,
			   score, tier, banned_until, updated_at
		FROM abuse_flags
		WHERE tenant_id = ? AND user_id = ? AND role = ? AND kind = ?
	`

	var f domain.AbuseFlag
	var bannedUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, userID, role, kind).Scan(
		&f.TenantID, &f.UserID, &f.Role, &f.Kind,
		&f.TotalCases, &f.FrivolousCases, &f.MonthlyCases,
		&f.Score, &f.Tier, &bannedUntil, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if bannedUntil.Valid {
		t := bannedUntil.Time
		f.BannedUntil = &t
	}
	return &f, nil
}

// SaveAbuseFlag upserts the abuse aggregate for a party.
func (r *SQLRepository) SaveAbuseFlag(ctx context.Context, tenantID string, flag *domain.AbuseFlag) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertFlag(ctx, tx, r, tenantID, flag); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveScreeningRule stores a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to marshal bands: %w", err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, version, kind, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Kind, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetScreeningRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, kind, expression, bands, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.ScreeningRule
	var bands string
	var enabled int
	var kind sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &kind, &cfg.Expression, &bands, &enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Kind = domain.CaseKind(kind.String)
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bands: %w", err)
	}

	return &cfg, nil
}

// ListScreeningRules retrieves all active screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, kind, expression, bands, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ScreeningRule
	for rows.Next() {
		var cfg domain.ScreeningRule
		var bands string
		var enabled int
		var kind sql.NullString

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &kind, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Kind = domain.CaseKind(kind.String)
		cfg.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bands: %w", err)
		}
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// ListTenants returns all tenants with at least one case.
func (r *SQLRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM cases ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Ping verifies database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
