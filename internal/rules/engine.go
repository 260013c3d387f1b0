// Package rules assigns categories to normalized transactions by ordered
// pattern matching. Evaluation is deterministic: rules run in configured
// order and the first match wins, so a rerun over the same ledger always
// reproduces the same assignments.
package rules

import (
	"fmt"
	"regexp"
	"sort"

	"gorm.io/gorm"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
)

// Defaults is the fallback categorization for transactions no rule matches.
type Defaults struct {
	CategoryID    uint
	SubcategoryID uint
}

type compiledRule struct {
	rule    models.TransactionRule
	pattern *regexp.Regexp
}

// Ruleset is an ordered, compiled rule list ready for evaluation.
type Ruleset struct {
	rules []compiledRule
}

// Compile sorts rules into evaluation order (position, then id for stable
// ties) and compiles their patterns case-insensitively. A rule with an
// invalid pattern fails compilation outright: silently skipping it would
// change which later rule wins.
func Compile(rules []models.TransactionRule) (*Ruleset, error) {
	ordered := make([]models.TransactionRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].ID < ordered[j].ID
	})

	compiled := make([]compiledRule, 0, len(ordered))
	for _, rule := range ordered {
		pattern, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", rule.ID, rule.Pattern, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, pattern: pattern})
	}
	return &Ruleset{rules: compiled}, nil
}

// Len returns the number of compiled rules.
func (rs *Ruleset) Len() int { return len(rs.rules) }

// Engine evaluates rulesets against transactions. Pure and side-effect
// free; it never mutates the transaction.
type Engine struct {
	defaults Defaults
}

// NewEngine creates an engine with the configured default categorization.
func NewEngine(defaults Defaults) *Engine {
	return &Engine{defaults: defaults}
}

// Categorize returns the assignment for a transaction: the first rule whose
// pattern matches the description and whose amount/account scope accepts
// the transaction. No further rules are evaluated after a match. When
// nothing matches, the configured default is assigned and the assignment is
// tagged uncategorized-default so it can be re-swept once new rules exist.
func (e *Engine) Categorize(tx models.Transaction, rs *Ruleset) models.TransactionCategory {
	for _, candidate := range rs.rules {
		if !candidate.matches(tx) {
			continue
		}
		ruleID := candidate.rule.ID
		return models.TransactionCategory{
			TransactionID: tx.ID,
			CategoryID:    candidate.rule.CategoryID,
			SubcategoryID: candidate.rule.SubcategoryID,
			RuleID:        &ruleID,
			Origin:        models.OriginRule,
		}
	}

	return models.TransactionCategory{
		TransactionID: tx.ID,
		CategoryID:    e.defaults.CategoryID,
		SubcategoryID: e.defaults.SubcategoryID,
		Origin:        models.OriginUncategorizedDefault,
	}
}

func (c compiledRule) matches(tx models.Transaction) bool {
	if !c.pattern.MatchString(tx.Description) {
		return false
	}
	if c.rule.MinAmountCents != nil && tx.AmountCents < *c.rule.MinAmountCents {
		return false
	}
	if c.rule.MaxAmountCents != nil && tx.AmountCents > *c.rule.MaxAmountCents {
		return false
	}
	if c.rule.AccountID != nil && tx.AccountID != *c.rule.AccountID {
		return false
	}
	return true
}

// Load reads a user's rules from the store in evaluation order. Rules are
// reference data; the engine only ever reads them.
func Load(db *gorm.DB, userID string) ([]models.TransactionRule, error) {
	var rules []models.TransactionRule
	if err := db.Where("user_id = ?", userID).
		Order("position, id").
		Find(&rules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rules, nil
}
