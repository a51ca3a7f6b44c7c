// Package domain defines the core interfaces and types for the locumbnb
// enforcement engine.
package domain

import (
	"context"
	"time"
)

// CaseMutation is the atomic unit of a lifecycle transition: the updated
// case (with its appended audit entry) plus any derived artifacts, committed
// in one database transaction. Partial application (state changed but no
// audit entry, or a charge created without the state change) must be
// impossible.
type CaseMutation struct {
	Case            *Case
	ExpectedVersion int64

	NewCharge     *PenaltyCharge
	UpdateCharge  *PenaltyCharge
	NewInvoice    *PenaltyInvoice
	UpdateInvoice *PenaltyInvoice
	UpdateFlag    *AbuseFlag
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Case operations
	CreateCase(ctx context.Context, tenantID string, c *Case) error
	GetCase(ctx context.Context, tenantID string, caseID string) (*Case, error)
	ApplyCaseMutation(ctx context.Context, tenantID string, m *CaseMutation) error
	ListCasesByState(ctx context.Context, tenantID string, kind CaseKind, state State) ([]*Case, error)
	ListCasesByParty(ctx context.Context, tenantID string, kind CaseKind, partyID string, role Role) ([]*Case, error)
	CountCasesByPartySince(ctx context.Context, tenantID string, kind CaseKind, partyID string, role Role, since time.Time) (int64, error)

	// Policy operations (versioned, keyed by assignment)
	SavePolicy(ctx context.Context, tenantID string, p *Policy) error
	GetPolicy(ctx context.Context, tenantID string, assignmentID string) (*Policy, error)

	// Derived artifacts
	GetPenaltyCharge(ctx context.Context, tenantID string, chargeID string) (*PenaltyCharge, error)
	GetPenaltyInvoice(ctx context.Context, tenantID string, invoiceID string) (*PenaltyInvoice, error)
	ListInvoicesDueBefore(ctx context.Context, tenantID string, asOf time.Time) ([]*PenaltyInvoice, error)

	// Abuse flags
	GetAbuseFlag(ctx context.Context, tenantID string, userID string, role Role, kind CaseKind) (*AbuseFlag, error)
	SaveAbuseFlag(ctx context.Context, tenantID string, flag *AbuseFlag) error

	// Screening rule configuration
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*ScreeningRule, error)
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)

	// ListTenants returns the tenants with at least one case, for sweeps.
	ListTenants(ctx context.Context) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
