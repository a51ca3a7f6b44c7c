package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/engine"
	"github.com/locumbnb/enforcement/internal/policy"
	"github.com/locumbnb/enforcement/internal/screening"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *engine.Engine
	screener *screening.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, screener *screening.Engine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   eng,
		screener: screener,
		version:  version,
	}
}

// CreateCancellationRequest is the request body for POST /cancellations.
type CreateCancellationRequest struct {
	AssignmentID    string         `json:"assignmentId"`
	ContractID      string         `json:"contractId"`
	Initiator       domain.Party   `json:"initiator"`
	Respondent      domain.Party   `json:"respondent"`
	Reason          string         `json:"reason"`
	StartDate       time.Time      `json:"startDate"`
	AssignmentValue float64        `json:"assignmentValue"`
	Policy          *domain.Policy `json:"policy,omitempty"`
}

// TransitionRequest is the request body for case transition endpoints.
type TransitionRequest struct {
	Action        string       `json:"action"`
	Actor         domain.Party `json:"actor"`
	Notes         string       `json:"notes,omitempty"`
	PaymentAmount float64      `json:"paymentAmount,omitempty"`
}

// CreateCancellation handles POST /cancellations.
func (h *Handler) CreateCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateCancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.CreateCancellationCase(ctx, tenantID, &engine.CancellationInput{
		AssignmentID:    req.AssignmentID,
		ContractID:      req.ContractID,
		Initiator:       req.Initiator,
		Respondent:      req.Respondent,
		Reason:          req.Reason,
		StartDate:       req.StartDate,
		AssignmentValue: req.AssignmentValue,
		Policy:          req.Policy,
	})
	if err != nil {
		writeError(w, "create cancellation case", err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// TransitionCancellation handles POST /cancellations/{id}/transition.
func (h *Handler) TransitionCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.TransitionCancellationCase(ctx, tenantID, caseID, req.Action, req.Actor, req.Notes)
	if err != nil {
		writeError(w, "transition cancellation case", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// WaiveChargeRequest is the request body for POST /charges/{id}/waive.
type WaiveChargeRequest struct {
	Actor  domain.Party `json:"actor"`
	Reason string       `json:"reason"`
}

// WaiveCharge handles POST /charges/{id}/waive.
func (h *Handler) WaiveCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	chargeID := chi.URLParam(r, "id")

	var req WaiveChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	charge, err := h.engine.WaivePenaltyCharge(ctx, tenantID, chargeID, req.Actor, req.Reason)
	if err != nil {
		writeError(w, "waive penalty charge", err)
		return
	}

	writeJSON(w, http.StatusOK, charge)
}

// GetCharge handles GET /charges/{id}.
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	chargeID := chi.URLParam(r, "id")

	charge, err := h.repo.GetPenaltyCharge(ctx, tenantID, chargeID)
	if err != nil {
		writeError(w, "get penalty charge", err)
		return
	}

	writeJSON(w, http.StatusOK, charge)
}

// ReportViolationRequest is the request body for POST /violations.
type ReportViolationRequest struct {
	Reporter       domain.Party `json:"reporter"`
	Violator       domain.Party `json:"violator"`
	RelatedPartyID string       `json:"relatedPartyId,omitempty"`
	Type           string       `json:"type"`
	Description    string       `json:"description"`
	Evidence       []string     `json:"evidence,omitempty"`
	AssignmentID   string       `json:"assignmentId,omitempty"`
}

// ReportViolation handles POST /violations.
func (h *Handler) ReportViolation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ReportViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.ReportViolation(ctx, tenantID, &engine.ViolationInput{
		Reporter:       req.Reporter,
		Violator:       req.Violator,
		RelatedPartyID: req.RelatedPartyID,
		Type:           req.Type,
		Description:    req.Description,
		Evidence:       req.Evidence,
		AssignmentID:   req.AssignmentID,
	})
	if err != nil {
		writeError(w, "report violation", err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// TransitionViolation handles POST /violations/{id}/transition.
func (h *Handler) TransitionViolation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.TransitionViolationCase(ctx, tenantID, caseID, &engine.ViolationTransition{
		Action:        req.Action,
		Actor:         req.Actor,
		Notes:         req.Notes,
		PaymentAmount: req.PaymentAmount,
	})
	if err != nil {
		writeError(w, "transition violation case", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GetInvoice handles GET /invoices/{id}.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	invoiceID := chi.URLParam(r, "id")

	invoice, err := h.repo.GetPenaltyInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		writeError(w, "get penalty invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

// CreateDisputeRequest is the request body for POST /disputes.
type CreateDisputeRequest struct {
	Initiator    domain.Party `json:"initiator"`
	Respondent   domain.Party `json:"respondent"`
	Type         string       `json:"type"`
	Subject      string       `json:"subject"`
	Description  string       `json:"description"`
	EscrowAmount float64      `json:"escrowAmount,omitempty"`
}

// CreateDispute handles POST /disputes.
func (h *Handler) CreateDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.CreateDisputeCase(ctx, tenantID, &engine.DisputeInput{
		Initiator:    req.Initiator,
		Respondent:   req.Respondent,
		Type:         req.Type,
		Subject:      req.Subject,
		Description:  req.Description,
		EscrowAmount: req.EscrowAmount,
	})
	if err != nil {
		writeError(w, "create dispute case", err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// TransitionDispute handles POST /disputes/{id}/transition.
func (h *Handler) TransitionDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.TransitionDisputeCase(ctx, tenantID, caseID, req.Action, req.Actor, req.Notes)
	if err != nil {
		writeError(w, "transition dispute case", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// ResolveDisputeRequest is the request body for POST /disputes/{id}/resolve.
type ResolveDisputeRequest struct {
	Outcome      domain.DisputeOutcome `json:"outcome"`
	Resolution   string                `json:"resolution"`
	FeeRefunded  bool                  `json:"feeRefunded"`
	EscrowAction domain.EscrowAction   `json:"escrowAction"`
	Actor        domain.Party          `json:"actor"`
}

// ResolveDispute handles POST /disputes/{id}/resolve.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.engine.ResolveDisputeCase(ctx, tenantID, caseID, &engine.DisputeResolution{
		Outcome:      req.Outcome,
		Resolution:   req.Resolution,
		FeeRefunded:  req.FeeRefunded,
		EscrowAction: req.EscrowAction,
		Actor:        req.Actor,
	})
	if err != nil {
		writeError(w, "resolve dispute case", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// DisputeEligibility handles GET /disputes/eligibility.
// It quotes the filing fee and restriction tier without creating anything.
func (h *Handler) DisputeEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	userID := r.URL.Query().Get("userId")
	role := domain.Role(r.URL.Query().Get("role"))
	if userID == "" || role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId and role query parameters are required",
		})
		return
	}

	decision, err := h.engine.CanFileDisputeCase(ctx, tenantID, userID, role)
	if err != nil {
		writeError(w, "check dispute eligibility", err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetCase handles GET /cases/{id}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, "get case", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GetCaseAudit handles GET /cases/{id}/audit.
func (h *Handler) GetCaseAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, "get case audit", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId": c.ID,
		"audit":  c.Audit,
		"count":  len(c.Audit),
	})
}

// ListCases handles GET /cases. Requires kind and state query parameters.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	kind := domain.CaseKind(r.URL.Query().Get("kind"))
	state := domain.State(r.URL.Query().Get("state"))
	if kind == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind and state query parameters are required",
		})
		return
	}

	cases, err := h.repo.ListCasesByState(ctx, tenantID, kind, state)
	if err != nil {
		writeError(w, "list cases", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": cases,
		"count": len(cases),
	})
}

// GetAbuseFlag handles GET /abuse-flags/{userId}.
func (h *Handler) GetAbuseFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	userID := chi.URLParam(r, "userId")

	role := domain.Role(r.URL.Query().Get("role"))
	kind := domain.CaseKind(r.URL.Query().Get("kind"))
	if role == "" {
		role = domain.RolePhysician
	}
	if kind == "" {
		kind = domain.KindDispute
	}

	flag, err := h.repo.GetAbuseFlag(ctx, tenantID, userID, role, kind)
	if err != nil {
		writeError(w, "get abuse flag", err)
		return
	}

	writeJSON(w, http.StatusOK, flag)
}

// SavePolicyRequest is the request body for POST /policies.
type SavePolicyRequest struct {
	ID               string                `json:"id"`
	AssignmentID     string                `json:"assignmentId"`
	Version          int                   `json:"version"`
	Windows          []domain.PolicyWindow `json:"windows"`
	GracePeriodHours int                   `json:"gracePeriodHours"`
	Symmetric        bool                  `json:"symmetric"`
	AcceptedAt       *time.Time            `json:"acceptedAt,omitempty"`
}

// SavePolicy handles POST /policies. Windows are validated before the
// policy is persisted; an invalid window set is never saved.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SavePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AssignmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assignmentId is required",
		})
		return
	}

	result := policy.ValidateWindows(req.Windows)
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "invalid policy windows",
			"errors": result.Errors,
		})
		return
	}

	version := req.Version
	if version <= 0 {
		version = 1
	}

	p := &domain.Policy{
		ID:               req.ID,
		TenantID:         tenantID,
		AssignmentID:     req.AssignmentID,
		Version:          version,
		Windows:          req.Windows,
		GracePeriodHours: req.GracePeriodHours,
		Symmetric:        req.Symmetric,
		AcceptedAt:       req.AcceptedAt,
		CreatedAt:        time.Now().UTC(),
	}
	if p.ID == "" {
		p.ID = p.AssignmentID + ":policy"
	}

	if err := h.repo.SavePolicy(ctx, tenantID, p); err != nil {
		writeError(w, "save policy", err)
		return
	}

	slog.Info("policy saved", "assignment_id", p.AssignmentID, "version", p.Version)
	writeJSON(w, http.StatusCreated, p)
}

// ValidatePolicy handles POST /policies/validate. It runs the window
// checks without persisting anything.
func (h *Handler) ValidatePolicy(w http.ResponseWriter, r *http.Request) {
	var req SavePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	writeJSON(w, http.StatusOK, policy.ValidateWindows(req.Windows))
}

// GetPolicy handles GET /policies/{assignmentId}. Returns the latest
// version for the assignment.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assignmentID := chi.URLParam(r, "assignmentId")

	p, err := h.repo.GetPolicy(ctx, tenantID, assignmentID)
	if err != nil {
		writeError(w, "get policy", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetDefaultWindows handles GET /policies/defaults. The template is a
// starting point for facility admins, not an applied fallback.
func (h *Handler) GetDefaultWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"windows": policy.DefaultWindows(),
	})
}

// CreateScreeningRuleRequest is the request body for creating a screening rule.
type CreateScreeningRuleRequest struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Kind        domain.CaseKind        `json:"kind,omitempty"`
	Expression  string                 `json:"expression"`
	Bands       []domain.ScreeningBand `json:"bands"`
	Enabled     bool                   `json:"enabled"`
}

// ListScreeningRules returns all rules loaded in the screening engine.
func (h *Handler) ListScreeningRules(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	loaded := h.screener.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetScreeningRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetScreeningRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	for _, rule := range h.screener.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "screening rule not found",
	})
}

// CreateScreeningRule creates a new screening rule and saves it to the
// database. The CEL expression is validated before the rule is persisted.
// After saving, call POST /screening-rules/reload to apply changes.
func (h *Handler) CreateScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateScreeningRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Kind:        req.Kind,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := h.screener.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screening rule",
		})
		return
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /screening-rules/reload to apply changes.",
	})
}

// ReloadScreeningRules reloads all screening rules from the database into
// the engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadScreeningRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil || h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreeningRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list screening rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screening rules from database",
		})
		return
	}

	if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screening rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "screening rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// SweepRequest is the optional request body for sweep endpoints.
type SweepRequest struct {
	AsOf *time.Time `json:"asOf,omitempty"`
}

func (h *Handler) sweepTime(r *http.Request) time.Time {
	var req SweepRequest
	if r.Body != nil {
		// Body is optional; decode failures fall back to now.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.AsOf != nil {
		return *req.AsOf
	}
	return time.Now().UTC()
}

// SweepGracePeriods handles POST /sweeps/grace. It expires elapsed grace
// periods for the request tenant.
func (h *Handler) SweepGracePeriods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	n, err := h.engine.ExpireGracePeriods(ctx, tenantID, h.sweepTime(r))
	if err != nil {
		writeError(w, "sweep grace periods", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired": n,
	})
}

// SweepInvoices handles POST /sweeps/invoices. It advances overdue penalty
// invoices for the request tenant.
func (h *Handler) SweepInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	n, err := h.engine.SweepInvoices(ctx, tenantID, h.sweepTime(r))
	if err != nil {
		writeError(w, "sweep invoices", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"advanced": n,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps engine and repository errors onto HTTP statuses:
// validation failures are 400, lifecycle conflicts 409, unknown records
// 404, everything else 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case domain.IsStateConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "record not found",
		})
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
