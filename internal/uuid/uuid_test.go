package uuid

import "testing"

func TestNewIsValidAndUnique(t *testing.T) {
	a := New()
	b := New()

	if !IsValid(a) || !IsValid(b) {
		t.Fatalf("expected valid UUIDs, got %q and %q", a, b)
	}
	if a == b {
		t.Errorf("expected distinct UUIDs, got %q twice", a)
	}
}

func TestContentRefDeterministic(t *testing.T) {
	a := ContentRef("user", "2025-01-15 00:00:00", "coffee shop", "", "-2.50")
	b := ContentRef("user", "2025-01-15 00:00:00", "coffee shop", "", "-2.50")

	if a != b {
		t.Errorf("same fields produced different refs: %q vs %q", a, b)
	}
	if !IsValid(a) {
		t.Errorf("content ref is not a valid UUID: %q", a)
	}
}

func TestContentRefBalanceBreaksTies(t *testing.T) {
	// Two identical purchases the same day differ only in running balance.
	a := ContentRef("user", "2025-01-15 00:00:00", "coffee shop", "", "-2.50", "100.00")
	b := ContentRef("user", "2025-01-15 00:00:00", "coffee shop", "", "-2.50", "97.50")

	if a == b {
		t.Error("expected different refs for different balances")
	}
}
