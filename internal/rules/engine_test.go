package rules

import (
	"testing"

	"bankfeed/internal/models"
)

var defaults = Defaults{CategoryID: 99, SubcategoryID: 990}

func rule(id uint, position int, pattern string, categoryID uint) models.TransactionRule {
	return models.TransactionRule{
		ID:            id,
		Position:      position,
		Pattern:       pattern,
		CategoryID:    categoryID,
		SubcategoryID: categoryID * 10,
	}
}

func tx(description string, amountCents int64) models.Transaction {
	return models.Transaction{ID: 1, AccountID: 7, Description: description, AmountCents: amountCents}
}

func TestCategorizeFirstMatchWins(t *testing.T) {
	rs, err := Compile([]models.TransactionRule{
		rule(1, 1, "mercadona", 10),
		rule(2, 2, "mercadona|carrefour", 20),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	engine := NewEngine(defaults)

	got := engine.Categorize(tx("mercadona compra", -1500), rs)
	if got.CategoryID != 10 {
		t.Errorf("expected first rule's category 10, got %d", got.CategoryID)
	}
	if got.RuleID == nil || *got.RuleID != 1 {
		t.Errorf("expected rule id 1, got %v", got.RuleID)
	}
	if got.Origin != models.OriginRule {
		t.Errorf("expected origin rule, got %s", got.Origin)
	}
}

func TestCategorizePositionOrderNotInsertionOrder(t *testing.T) {
	// Same rules, supplied out of order; position decides.
	rs, err := Compile([]models.TransactionRule{
		rule(2, 2, "mercadona|carrefour", 20),
		rule(1, 1, "mercadona", 10),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	got := NewEngine(defaults).Categorize(tx("mercadona compra", -1500), rs)
	if got.CategoryID != 10 {
		t.Errorf("expected position 1 rule to win, got category %d", got.CategoryID)
	}
}

func TestCategorizeDefaultFallback(t *testing.T) {
	rs, err := Compile([]models.TransactionRule{rule(1, 1, "netflix", 10)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	got := NewEngine(defaults).Categorize(tx("panaderia del barrio", -320), rs)
	if got.CategoryID != defaults.CategoryID || got.SubcategoryID != defaults.SubcategoryID {
		t.Errorf("expected defaults %d/%d, got %d/%d", defaults.CategoryID, defaults.SubcategoryID, got.CategoryID, got.SubcategoryID)
	}
	if got.Origin != models.OriginUncategorizedDefault {
		t.Errorf("expected uncategorized-default origin, got %s", got.Origin)
	}
	if got.RuleID != nil {
		t.Errorf("expected no rule id, got %v", got.RuleID)
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	ruleList := []models.TransactionRule{
		rule(1, 1, "super", 10),
		rule(2, 2, "compra", 20),
	}
	rs, err := Compile(ruleList)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	engine := NewEngine(defaults)
	transaction := tx("supermercado compra", -900)

	first := engine.Categorize(transaction, rs)
	for i := 0; i < 10; i++ {
		again := engine.Categorize(transaction, rs)
		if again.CategoryID != first.CategoryID ||
			again.SubcategoryID != first.SubcategoryID ||
			again.Origin != first.Origin ||
			(again.RuleID == nil) != (first.RuleID == nil) ||
			(again.RuleID != nil && *again.RuleID != *first.RuleID) {
			t.Fatalf("categorize is not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestCategorizeReorderingNonMatchingRulesIsIrrelevant(t *testing.T) {
	matching := rule(3, 3, "gasolinera", 30)
	a := []models.TransactionRule{rule(1, 1, "netflix", 10), rule(2, 2, "spotify", 20), matching}
	b := []models.TransactionRule{rule(2, 1, "spotify", 20), rule(1, 2, "netflix", 10), matching}

	rsA, err := Compile(a)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rsB, err := Compile(b)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	engine := NewEngine(defaults)
	transaction := tx("gasolinera repsol", -5000)

	if got, want := engine.Categorize(transaction, rsA), engine.Categorize(transaction, rsB); got.CategoryID != want.CategoryID {
		t.Errorf("reordering non-matching rules changed the result: %d vs %d", got.CategoryID, want.CategoryID)
	}
}

func TestCategorizeAmountAndAccountScope(t *testing.T) {
	min := int64(-10000)
	max := int64(-5000)
	account := uint(8)

	scoped := models.TransactionRule{
		ID: 1, Position: 1, Pattern: "amazon",
		MinAmountCents: &min, MaxAmountCents: &max, AccountID: &account,
		CategoryID: 10, SubcategoryID: 100,
	}
	rs, err := Compile([]models.TransactionRule{scoped})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	engine := NewEngine(defaults)

	t.Run("outside_amount_bounds", func(t *testing.T) {
		transaction := tx("amazon eu", -200)
		transaction.AccountID = account
		if got := engine.Categorize(transaction, rs); got.Origin != models.OriginUncategorizedDefault {
			t.Errorf("expected default for out-of-bounds amount, got category %d", got.CategoryID)
		}
	})

	t.Run("wrong_account", func(t *testing.T) {
		transaction := tx("amazon eu", -7000)
		transaction.AccountID = 9
		if got := engine.Categorize(transaction, rs); got.Origin != models.OriginUncategorizedDefault {
			t.Errorf("expected default for wrong account, got category %d", got.CategoryID)
		}
	})

	t.Run("in_scope", func(t *testing.T) {
		transaction := tx("amazon eu", -7000)
		transaction.AccountID = account
		if got := engine.Categorize(transaction, rs); got.CategoryID != 10 {
			t.Errorf("expected scoped rule to match, got category %d", got.CategoryID)
		}
	})
}

func TestCompileRejectsInvalidPattern(t *testing.T) {
	_, err := Compile([]models.TransactionRule{rule(1, 1, "([unclosed", 10)})
	if err == nil {
		t.Fatal("expected compile error for invalid pattern")
	}
}

func TestCompileCaseInsensitive(t *testing.T) {
	rs, err := Compile([]models.TransactionRule{rule(1, 1, "MERCADONA", 10)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := NewEngine(defaults).Categorize(tx("mercadona compra", -100), rs); got.CategoryID != 10 {
		t.Errorf("expected case-insensitive match, got category %d", got.CategoryID)
	}
}
