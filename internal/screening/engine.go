// Package screening provides the CEL-Go based case screening engine.
// Admin-configured rules run against every case submission before the case
// is created; the most restrictive outcome across rules wins.
package screening

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/locumbnb/enforcement/internal/domain"
)

// Engine is the CEL-based screening engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine() (*Engine, error) {
	// CEL environment with case-submission variables
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("escrow_amount", cel.DoubleType),
		cel.Variable("description_len", cel.IntType),
		cel.Variable("evidence_count", cel.IntType),
		cel.Variable("initiator_id", cel.StringType),
		cel.Variable("initiator_role", cel.StringType),
		cel.Variable("abuse_score", cel.DoubleType),
		cel.Variable("monthly_filings", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("screening rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// Enables hot-reloading of screening rules from the database.
func (e *Engine) ReloadRules(configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Input holds the case-submission facts exposed to screening rules.
type Input struct {
	TenantID       string
	Kind           domain.CaseKind
	Amount         float64
	EscrowAmount   float64
	DescriptionLen int
	EvidenceCount  int
	InitiatorID    string
	InitiatorRole  domain.Role
	AbuseScore     float64
	MonthlyFilings int
}

// Verdict is the aggregate screening decision for a submission.
type Verdict struct {
	Outcome string                   `json:"outcome"`
	Reasons []string                 `json:"reasons,omitempty"`
	Results []domain.ScreeningResult `json:"results,omitempty"`
}

// Screen evaluates all loaded rules that apply to the submission's kind and
// aggregates to the most restrictive outcome: any .deny denies, else any
// .review flags for review, else .allow. Rule evaluation errors degrade to
// .review rather than blocking the filing.
func (e *Engine) Screen(input *Input) *Verdict {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.Kind == "" || rule.Config.Kind == input.Kind {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	verdict := &Verdict{Outcome: domain.ScreeningAllow}
	if len(rules) == 0 {
		return verdict
	}

	activation := map[string]any{
		"kind":            string(input.Kind),
		"amount":          input.Amount,
		"escrow_amount":   input.EscrowAmount,
		"description_len": input.DescriptionLen,
		"evidence_count":  input.EvidenceCount,
		"initiator_id":    input.InitiatorID,
		"initiator_role":  string(input.InitiatorRole),
		"abuse_score":     input.AbuseScore,
		"monthly_filings": input.MonthlyFilings,
	}

	for _, rule := range rules {
		result := e.evaluateRule(rule, activation, input.TenantID)
		verdict.Results = append(verdict.Results, result)

		outcome := result.Outcome
		if outcome == domain.ScreeningError {
			outcome = domain.ScreeningReview
		}
		if outcome != domain.ScreeningAllow && result.Reason != "" {
			verdict.Reasons = append(verdict.Reasons, result.Reason)
		}
		if restrictiveness(outcome) > restrictiveness(verdict.Outcome) {
			verdict.Outcome = outcome
		}
	}

	return verdict
}

func restrictiveness(outcome string) int {
	switch outcome {
	case domain.ScreeningDeny:
		return 2
	case domain.ScreeningReview:
		return 1
	default:
		return 0
	}
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, tenantID string) domain.ScreeningResult {
	start := time.Now()

	result := domain.ScreeningResult{
		RuleID:   rule.Config.ID,
		TenantID: tenantID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.ScreeningError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score
	result.Outcome, result.Reason = matchBand(score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive, a nil
// upper means unbounded.
func matchBand(score float64, bands []domain.ScreeningBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Outcome, band.Reason
		}
	}

	// Default to allow if no band matches
	return domain.ScreeningAllow, "no matching band"
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ScreeningRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screening rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("screening rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screening rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
