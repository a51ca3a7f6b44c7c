package repository

// Schema definitions for the enforcement database.
// Compatible with both SQLite and PostgreSQL.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    assignment_id TEXT,
    initiator_id TEXT NOT NULL,
    initiator_role TEXT NOT NULL,
    respondent_id TEXT NOT NULL,
    respondent_role TEXT NOT NULL,
    state TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    audit TEXT NOT NULL,
    details TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id);
CREATE INDEX IF NOT EXISTS idx_cases_state ON cases(tenant_id, kind, state);
CREATE INDEX IF NOT EXISTS idx_cases_initiator ON cases(tenant_id, kind, initiator_id, initiator_role);
CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(tenant_id, created_at);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    assignment_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    windows TEXT NOT NULL,
    grace_period_hours INTEGER NOT NULL DEFAULT 0,
    symmetric INTEGER NOT NULL DEFAULT 1,
    accepted_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, assignment_id, version)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
`

const schemaPenaltyCharges = `
CREATE TABLE IF NOT EXISTS penalty_charges (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    charged_to_id TEXT NOT NULL,
    charged_to_role TEXT NOT NULL,
    amount REAL NOT NULL,
    percentage REAL NOT NULL,
    status TEXT NOT NULL,
    waive_reason TEXT,
    waived_by TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_charges_tenant ON penalty_charges(tenant_id);
CREATE INDEX IF NOT EXISTS idx_charges_case ON penalty_charges(tenant_id, case_id);
`

const schemaPenaltyInvoices = `
CREATE TABLE IF NOT EXISTS penalty_invoices (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    amount REAL NOT NULL,
    issued_at TIMESTAMP NOT NULL,
    due_date TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    amount_paid REAL NOT NULL DEFAULT 0,
    paid_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_tenant ON penalty_invoices(tenant_id);
CREATE INDEX IF NOT EXISTS idx_invoices_due ON penalty_invoices(tenant_id, status, due_date);
`

const schemaAbuseFlags = `
CREATE TABLE IF NOT EXISTS abuse_flags (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    kind TEXT NOT NULL,
    total_cases INTEGER NOT NULL DEFAULT 0,
    frivolous_cases INTEGER NOT NULL DEFAULT 0,
    monthly_cases INTEGER NOT NULL DEFAULT 0,
    score REAL NOT NULL DEFAULT 0,
    tier TEXT NOT NULL,
    banned_until TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, user_id, role, kind)
);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    kind TEXT,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCases,
		schemaPolicies,
		schemaPenaltyCharges,
		schemaPenaltyInvoices,
		schemaAbuseFlags,
		schemaScreeningRules,
	}
}
