//go:build integration
// +build integration

// Package integration provides end-to-end tests for the enforcement engine.
//
// These tests verify the COMPLETE adjudication pipeline over HTTP:
//
//	Case creation → lifecycle transitions → derived artifacts → audit trail
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. CANCELLATION: A party backs out of a confirmed assignment. The penalty
//    is a percentage of the assignment value, picked by how many days of
//    notice were given (the policy's windows). Approval creates exactly one
//    penalty charge.
//
// 2. VIOLATION: A reported attempt to take a marketplace relationship
//    off-platform. Confirmation issues a fixed-amount penalty invoice with
//    a payment term; unpaid invoices age into collections.
//
// 3. DISPUTE: A conflict between two parties. Filing costs a fee scaled by
//    the filer's abuse history and lands the case directly in "escalated".
//    An admin resolves it with an outcome and an escrow directive.
//
// Tests run against a live server; each run uses a fresh tenant so state
// from earlier runs cannot interfere.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("ENFORCE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching the enforcement API contract)
// ============================================================================

type Party struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type Window struct {
	ThresholdDays     int     `json:"thresholdDaysBeforeStart"`
	PenaltyPercentage float64 `json:"penaltyPercentage"`
}

type Policy struct {
	AssignmentID     string   `json:"assignmentId"`
	Windows          []Window `json:"windows"`
	GracePeriodHours int      `json:"gracePeriodHours"`
}

type CreateCancellationRequest struct {
	AssignmentID    string    `json:"assignmentId"`
	ContractID      string    `json:"contractId"`
	Initiator       Party     `json:"initiator"`
	Respondent      Party     `json:"respondent"`
	Reason          string    `json:"reason"`
	StartDate       time.Time `json:"startDate"`
	AssignmentValue float64   `json:"assignmentValue"`
	Policy          *Policy   `json:"policy,omitempty"`
}

type TransitionRequest struct {
	Action        string  `json:"action"`
	Actor         Party   `json:"actor"`
	Notes         string  `json:"notes,omitempty"`
	PaymentAmount float64 `json:"paymentAmount,omitempty"`
}

type ReportViolationRequest struct {
	Reporter    Party    `json:"reporter"`
	Violator    Party    `json:"violator"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

type CreateDisputeRequest struct {
	Initiator   Party  `json:"initiator"`
	Respondent  Party  `json:"respondent"`
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

type ResolveDisputeRequest struct {
	Outcome      string `json:"outcome"`
	Resolution   string `json:"resolution"`
	FeeRefunded  bool   `json:"feeRefunded"`
	EscrowAction string `json:"escrowAction"`
	Actor        Party  `json:"actor"`
}

type SweepRequest struct {
	AsOf *time.Time `json:"asOf,omitempty"`
}

// CaseResponse is the case payload returned by the API.
type CaseResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	State        string `json:"state"`
	Version      int64  `json:"version"`
	Cancellation *struct {
		PenaltyPercentage float64 `json:"penaltyPercentage"`
		PenaltyAmount     float64 `json:"penaltyAmount"`
		ChargeID          string  `json:"chargeId"`
	} `json:"cancellation"`
	Violation *struct {
		PenaltyAmount float64 `json:"penaltyAmount"`
		InvoiceID     string  `json:"invoiceId"`
	} `json:"violation"`
	Dispute *struct {
		FeeAmount  float64 `json:"feeAmount"`
		Outcome    string  `json:"outcome"`
		Resolution string  `json:"resolution"`
	} `json:"dispute"`
	Audit []struct {
		Action string `json:"action"`
	} `json:"audit"`
}

type ChargeResponse struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	WaiveReason string  `json:"waiveReason"`
}

type InvoiceResponse struct {
	ID         string    `json:"id"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	DueDate    time.Time `json:"dueDate"`
	AmountPaid float64   `json:"amountPaid"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, reqBody any, wantStatus int, out any) {
	t.Helper()

	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != wantStatus {
		t.Fatalf("Expected status %d, got %d: %s", wantStatus, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
}

func standardPolicy(assignmentID string, graceHours int) *Policy {
	return &Policy{
		AssignmentID: assignmentID,
		Windows: []Window{
			{ThresholdDays: 30, PenaltyPercentage: 0},
			{ThresholdDays: 14, PenaltyPercentage: 25},
			{ThresholdDays: 7, PenaltyPercentage: 50},
			{ThresholdDays: 0, PenaltyPercentage: 100},
		},
		GracePeriodHours: graceHours,
	}
}

var (
	physician = Party{ID: "phys-001", Role: "physician"}
	facility  = Party{ID: "fac-001", Role: "facility"}
	admin     = Party{ID: "admin-001", Role: "admin"}
)

// ============================================================================
// SCENARIO 1: Cancellation with 20 days notice → 25% penalty charge
// ============================================================================

func TestCancellation_ApprovalCreatesCharge(t *testing.T) {
	/*
	   SCENARIO: A physician cancels a $10,000 assignment 20 days out.

	   EXPECTED BEHAVIOR:
	   - 20 days notice matches the 14-day window → 25% penalty
	   - No grace period on the policy → case opens as "pending"
	   - Admin approval creates exactly one $2,500 charge, pending status
	   - The engine decides; no money moves here
	*/
	config := getTestConfig()

	var c CaseResponse
	call(t, config, "POST", "/cancellations", CreateCancellationRequest{
		AssignmentID:    "it-assignment-001",
		ContractID:      "it-contract-001",
		Initiator:       physician,
		Respondent:      facility,
		Reason:          "family emergency",
		StartDate:       time.Now().UTC().AddDate(0, 0, 20),
		AssignmentValue: 10000,
		Policy:          standardPolicy("it-assignment-001", 0),
	}, http.StatusCreated, &c)

	if c.State != "pending" {
		t.Fatalf("Expected pending, got %s", c.State)
	}

	call(t, config, "POST", "/cancellations/"+c.ID+"/transition", TransitionRequest{
		Action: "approve",
		Actor:  admin,
	}, http.StatusOK, &c)

	if c.State != "approved" {
		t.Errorf("Expected approved, got %s", c.State)
	}
	if c.Cancellation == nil || c.Cancellation.PenaltyAmount != 2500 {
		t.Fatalf("Expected $2500 penalty, got %+v", c.Cancellation)
	}
	if c.Cancellation.ChargeID == "" {
		t.Fatal("Expected a charge id on the approved case")
	}

	var charge ChargeResponse
	call(t, config, "GET", "/charges/"+c.Cancellation.ChargeID, nil, http.StatusOK, &charge)
	if charge.Status != "pending" || charge.Amount != 2500 {
		t.Errorf("Unexpected charge: %+v", charge)
	}

	// Approving again must conflict: terminal states are immutable.
	call(t, config, "POST", "/cancellations/"+c.ID+"/transition", TransitionRequest{
		Action: "approve",
		Actor:  admin,
	}, http.StatusConflict, nil)

	t.Logf("✓ Cancellation adjudicated: penalty=%.0f%%, charge=%s", c.Cancellation.PenaltyPercentage, c.Cancellation.ChargeID)
}

// ============================================================================
// SCENARIO 2: Grace period withdrawal, then sweep expiry
// ============================================================================

func TestCancellation_GracePeriodFlow(t *testing.T) {
	/*
	   SCENARIO: Policy grants 24h grace. One case is withdrawn inside the
	   window (no penalty ever), a second is left to expire via the sweep.

	   EXPECTED BEHAVIOR:
	   - Cases open as "grace_period"
	   - Withdrawal by the initiator is final and charge-free
	   - The sweep moves the elapsed case to "pending" exactly once
	*/
	config := getTestConfig()

	var withdrawn CaseResponse
	call(t, config, "POST", "/cancellations", CreateCancellationRequest{
		AssignmentID:    "it-assignment-g1",
		ContractID:      "it-contract-g1",
		Initiator:       physician,
		Respondent:      facility,
		Reason:          "scheduling conflict",
		StartDate:       time.Now().UTC().AddDate(0, 0, 20),
		AssignmentValue: 8000,
		Policy:          standardPolicy("it-assignment-g1", 24),
	}, http.StatusCreated, &withdrawn)

	if withdrawn.State != "grace_period" {
		t.Fatalf("Expected grace_period, got %s", withdrawn.State)
	}

	call(t, config, "POST", "/cancellations/"+withdrawn.ID+"/transition", TransitionRequest{
		Action: "withdraw",
		Actor:  physician,
	}, http.StatusOK, &withdrawn)

	if withdrawn.State != "withdrawn" {
		t.Errorf("Expected withdrawn, got %s", withdrawn.State)
	}
	if withdrawn.Cancellation.ChargeID != "" {
		t.Error("A withdrawn case must never carry a charge")
	}

	var expiring CaseResponse
	call(t, config, "POST", "/cancellations", CreateCancellationRequest{
		AssignmentID:    "it-assignment-g2",
		ContractID:      "it-contract-g2",
		Initiator:       physician,
		Respondent:      facility,
		Reason:          "scheduling conflict",
		StartDate:       time.Now().UTC().AddDate(0, 0, 20),
		AssignmentValue: 8000,
		Policy:          standardPolicy("it-assignment-g2", 24),
	}, http.StatusCreated, &expiring)

	asOf := time.Now().UTC().Add(25 * time.Hour)
	var sweep struct {
		Expired int `json:"expired"`
	}
	call(t, config, "POST", "/sweeps/grace", SweepRequest{AsOf: &asOf}, http.StatusOK, &sweep)
	if sweep.Expired != 1 {
		t.Errorf("Expected 1 expired case, got %d", sweep.Expired)
	}

	var refreshed CaseResponse
	call(t, config, "GET", "/cases/"+expiring.ID, nil, http.StatusOK, &refreshed)
	if refreshed.State != "pending" {
		t.Errorf("Expected swept case pending, got %s", refreshed.State)
	}

	// Second sweep at the same instant finds nothing: expiry is one-shot.
	call(t, config, "POST", "/sweeps/grace", SweepRequest{AsOf: &asOf}, http.StatusOK, &sweep)
	if sweep.Expired != 0 {
		t.Errorf("Expected idempotent sweep, got %d expired", sweep.Expired)
	}

	t.Logf("✓ Grace period flow verified")
}

// ============================================================================
// SCENARIO 3: Violation lifecycle through collections
// ============================================================================

func TestViolation_FullLifecycle(t *testing.T) {
	/*
	   SCENARIO: A facility is reported for recruiting a physician
	   off-platform. The case is investigated, confirmed, invoiced, and the
	   invoice ages into collections unpaid.

	   EXPECTED BEHAVIOR:
	   - pending_review → under_investigation → confirmed → penalty_applied
	   - The invoice carries the fixed penalty amount and a due date
	   - Past due + grace, the sweep moves it to in_collection
	*/
	config := getTestConfig()

	var c CaseResponse
	call(t, config, "POST", "/violations", ReportViolationRequest{
		Reporter:    physician,
		Violator:    facility,
		Type:        "off_platform_recruitment",
		Description: "facility manager asked me to book future shifts directly by phone",
		Evidence:    []string{"screenshot-001.png"},
	}, http.StatusCreated, &c)

	if c.State != "pending_review" {
		t.Fatalf("Expected pending_review, got %s", c.State)
	}

	for _, action := range []string{"investigate", "confirm", "issue_invoice"} {
		call(t, config, "POST", "/violations/"+c.ID+"/transition", TransitionRequest{
			Action: action,
			Actor:  admin,
		}, http.StatusOK, &c)
	}

	if c.State != "penalty_applied" {
		t.Fatalf("Expected penalty_applied, got %s", c.State)
	}
	if c.Violation == nil || c.Violation.InvoiceID == "" {
		t.Fatal("Expected an invoice id on the case")
	}

	var invoice InvoiceResponse
	call(t, config, "GET", "/invoices/"+c.Violation.InvoiceID, nil, http.StatusOK, &invoice)
	if invoice.Status != "pending" {
		t.Errorf("Expected pending invoice, got %s", invoice.Status)
	}
	if invoice.Amount != c.Violation.PenaltyAmount {
		t.Errorf("Invoice amount %f does not match case penalty %f", invoice.Amount, c.Violation.PenaltyAmount)
	}

	// Age the invoice past due date plus collections grace.
	asOf := invoice.DueDate.Add(31 * 24 * time.Hour)
	var sweep struct {
		Advanced int `json:"advanced"`
	}
	call(t, config, "POST", "/sweeps/invoices", SweepRequest{AsOf: &asOf}, http.StatusOK, &sweep)
	if sweep.Advanced != 1 {
		t.Errorf("Expected 1 advanced invoice, got %d", sweep.Advanced)
	}

	call(t, config, "GET", "/invoices/"+invoice.ID, nil, http.StatusOK, &invoice)
	if invoice.Status != "in_collection" {
		t.Errorf("Expected in_collection, got %s", invoice.Status)
	}

	t.Logf("✓ Violation lifecycle verified: invoice=%s, status=%s", invoice.ID, invoice.Status)
}

// ============================================================================
// SCENARIO 4: Dispute filing, resolution, and audit trail
// ============================================================================

func TestDispute_FileAndResolve(t *testing.T) {
	/*
	   SCENARIO: A physician with a clean history files a payment dispute.

	   EXPECTED BEHAVIOR:
	   - Eligibility quote returns allowed with the base fee
	   - Filing lands directly in "escalated" with an auto_escalated entry
	   - Admin resolution records outcome, escrow directive, and fee refund
	   - The audit trail shows creation, escalation, and resolution
	*/
	config := getTestConfig()

	var decision struct {
		Allowed   bool    `json:"allowed"`
		FeeAmount float64 `json:"feeAmount"`
	}
	call(t, config, "GET", "/disputes/eligibility?userId=phys-002&role=physician", nil, http.StatusOK, &decision)
	if !decision.Allowed {
		t.Fatal("Expected a clean party to be allowed to file")
	}
	if decision.FeeAmount <= 0 {
		t.Fatalf("Expected a positive fee quote, got %f", decision.FeeAmount)
	}

	var c CaseResponse
	call(t, config, "POST", "/disputes", CreateDisputeRequest{
		Initiator:   Party{ID: "phys-002", Role: "physician"},
		Respondent:  facility,
		Type:        "payment",
		Subject:     "unpaid overtime",
		Description: "three weeks of documented overtime remain unpaid after escalation",
	}, http.StatusCreated, &c)

	if c.State != "escalated" {
		t.Fatalf("Expected escalated, got %s", c.State)
	}
	if c.Dispute == nil || c.Dispute.FeeAmount != decision.FeeAmount {
		t.Errorf("Filing fee does not match the quote: %+v", c.Dispute)
	}

	call(t, config, "POST", "/disputes/"+c.ID+"/resolve", ResolveDisputeRequest{
		Outcome:      "favor_initiator",
		Resolution:   "facility to pay outstanding overtime within 14 days",
		FeeRefunded:  true,
		EscrowAction: "release_initiator",
		Actor:        admin,
	}, http.StatusOK, &c)

	if c.State != "resolved" {
		t.Errorf("Expected resolved, got %s", c.State)
	}
	if c.Dispute.Outcome != "favor_initiator" {
		t.Errorf("Expected favor_initiator, got %s", c.Dispute.Outcome)
	}

	var audit struct {
		Audit []struct {
			Action string `json:"action"`
		} `json:"audit"`
		Count int `json:"count"`
	}
	call(t, config, "GET", "/cases/"+c.ID+"/audit", nil, http.StatusOK, &audit)
	if audit.Count < 3 {
		t.Fatalf("Expected at least 3 audit entries, got %d", audit.Count)
	}

	seen := map[string]bool{}
	for _, e := range audit.Audit {
		seen[e.Action] = true
	}
	for _, want := range []string{"case_created", "auto_escalated", "dispute_resolved"} {
		if !seen[want] {
			t.Errorf("Expected audit action %q in trail", want)
		}
	}

	t.Logf("✓ Dispute resolved with %d audit entries", audit.Count)
}

// ============================================================================
// SCENARIO 5: Tenant isolation over HTTP
// ============================================================================

func TestTenantIsolation(t *testing.T) {
	/*
	   SCENARIO: Tenant A creates a case; tenant B asks for it by ID.

	   EXPECTED BEHAVIOR: 404 for tenant B. Tenancy is enforced in every
	   query, not filtered after the fact.
	*/
	config := getTestConfig()

	var c CaseResponse
	call(t, config, "POST", "/cancellations", CreateCancellationRequest{
		AssignmentID:    "it-assignment-iso",
		ContractID:      "it-contract-iso",
		Initiator:       physician,
		Respondent:      facility,
		Reason:          "isolation check",
		StartDate:       time.Now().UTC().AddDate(0, 0, 20),
		AssignmentValue: 5000,
		Policy:          standardPolicy("it-assignment-iso", 0),
	}, http.StatusCreated, &c)

	other := config
	other.TenantID = config.TenantID + "-other"
	call(t, other, "GET", "/cases/"+c.ID, nil, http.StatusNotFound, nil)

	t.Logf("✓ Tenant isolation verified")
}
