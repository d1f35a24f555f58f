// Package rules provides the CEL-Go based suppression rule engine. Operators
// define boolean expressions over scored account facts; a matching rule
// rescales the account's suspicion score by the rule's factor.
package rules

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine compiles and evaluates suppression rules.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.SuppressionRule
	Program cel.Program
}

// Hit records one rule firing on one account.
type Hit struct {
	RuleID    string  `json:"rule_id"`
	AccountID string  `json:"account_id"`
	Factor    float64 `json:"factor"`
}

// NewEngine creates an engine with the account-fact CEL environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("suspicion_score", cel.DoubleType),
		cel.Variable("confidence_score", cel.DoubleType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("pattern_count", cel.IntType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
		cel.Variable("velocity", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(rule *domain.SuppressionRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.SuppressionRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiled[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.SuppressionRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. This enables
// hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.SuppressionRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Apply evaluates every loaded rule against every scored account, rescaling
// the suspicion score of matching accounts. Rules are evaluated in rule-id
// order so repeated runs adjust identically. Returns the hits applied.
func (e *Engine) Apply(accounts []*domain.SuspiciousAccount) []Hit {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiled))
	for _, rule := range e.compiled {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(accounts) == 0 {
		return nil
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Rule.ID < rules[j].Rule.ID
	})

	var hits []Hit
	for _, acct := range accounts {
		activation := activationFor(acct)
		for _, rule := range rules {
			out, _, err := rule.Program.Eval(activation)
			if err != nil {
				continue
			}
			matched, ok := out.(types.Bool)
			if !ok || !bool(matched) {
				continue
			}
			acct.SuspicionScore = rescale(acct.SuspicionScore, rule.Rule.Factor)
			activation["suspicion_score"] = acct.SuspicionScore
			hits = append(hits, Hit{
				RuleID:    rule.Rule.ID,
				AccountID: acct.AccountID,
				Factor:    rule.Rule.Factor,
			})
		}
	}
	return hits
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.SuppressionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.SuppressionRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.SuppressionRule) (*CompiledRule, error) {
	if rule.Factor <= 0 {
		return nil, fmt.Errorf("rule %s: factor must be positive, got %v", rule.ID, rule.Factor)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func activationFor(acct *domain.SuspiciousAccount) map[string]any {
	patterns := make([]string, len(acct.DetectedPatterns))
	for i, p := range acct.DetectedPatterns {
		patterns[i] = string(p)
	}
	return map[string]any{
		"account_id":       acct.AccountID,
		"suspicion_score":  acct.SuspicionScore,
		"confidence_score": acct.ConfidenceScore,
		"in_degree":        acct.InDegree,
		"out_degree":       acct.OutDegree,
		"pattern_count":    len(acct.DetectedPatterns),
		"patterns":         patterns,
		"velocity":         acct.Velocity,
	}
}

func rescale(score, factor float64) float64 {
	scaled := math.Min(100, math.Max(0, score*factor))
	return math.Round(scaled*10) / 10
}
