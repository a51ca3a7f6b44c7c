package domain

import "time"

// ChargeStatus is the execution status of a penalty charge. The engine only
// decides the charge; the external payment collaborator moves it out of
// "pending".
type ChargeStatus string

const (
	ChargePending  ChargeStatus = "pending"
	ChargeCharged  ChargeStatus = "charged"
	ChargeRefunded ChargeStatus = "refunded"
	ChargeWaived   ChargeStatus = "waived"
)

// PenaltyCharge is the derived artifact of an approved cancellation case.
// Exactly one charge exists per approved case. Waiving is one-way and
// requires a reason.
type PenaltyCharge struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	ChargedTo  Party   `json:"chargedTo"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`

	Status      ChargeStatus `json:"status"`
	WaiveReason string       `json:"waiveReason,omitempty"`
	WaivedBy    string       `json:"waivedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InvoiceStatus is the collection status of a violation penalty invoice.
type InvoiceStatus string

const (
	InvoicePending      InvoiceStatus = "pending"
	InvoicePaid         InvoiceStatus = "paid"
	InvoiceOverdue      InvoiceStatus = "overdue"
	InvoiceInCollection InvoiceStatus = "in_collection"
	InvoiceWaived       InvoiceStatus = "waived"
)

// PenaltyInvoice is the derived artifact of a confirmed violation case.
// The amount is the fixed penalty from enforcement settings, not
// time-scaled. An unpaid invoice moves to overdue past DueDate and to
// in_collection once past the collections grace threshold.
type PenaltyInvoice struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	Amount   float64   `json:"amount"`
	IssuedAt time.Time `json:"issuedAt"`
	DueDate  time.Time `json:"dueDate"`

	Status     InvoiceStatus `json:"status"`
	AmountPaid float64       `json:"amountPaid"`
	PaidAt     *time.Time    `json:"paidAt,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}
