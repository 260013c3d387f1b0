package normalize

import (
	"testing"
	"time"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
)

var testAccount = models.Account{ID: 7, BankID: 1, AccountType: models.AccountTypeBankID, AccountNumber: "ES80****7238"}

const testUserID = "5f6c1e1e-0000-4000-8000-000000000001"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int64
	}{
		{"plain", "1234.56", 123456},
		{"plain_negative", "-12.30", -1230},
		{"spanish", "1.234,56", 123456},
		{"spanish_negative", "-1.234,56", -123456},
		{"euro_symbol", "-45,90 €", -4590},
		{"no_decimals", "120", 12000},
		{"thousands_plain", "1,234.56", 123456},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.raw)
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := ParseAmount("not a number"); err == nil {
			t.Error("expected error for unparseable amount")
		}
	})
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"iso", "2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"iso_timestamp", "2025-01-15 17:39:08", time.Date(2025, 1, 15, 17, 39, 8, 0, time.UTC)},
		{"spanish", "15/01/2025", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"iso8601_t", "2025-01-15T17:39:08", time.Date(2025, 1, 15, 17, 39, 8, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.raw)
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("canonical_fields", func(t *testing.T) {
		row := RawRow{
			KeyDate:        "15/01/2025",
			KeyDescription: "  Mercadona COMPRA ",
			KeyAmount:      "-1.234,56",
			KeyBalance:     "2.000,00",
		}

		tx, err := Normalize(row, testAccount, models.SourceScraped, testUserID, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tx.Description != "mercadona compra" {
			t.Errorf("expected lowercased trimmed description, got %q", tx.Description)
		}
		if tx.AmountCents != -123456 {
			t.Errorf("expected -123456 cents, got %d", tx.AmountCents)
		}
		if tx.AccountID != testAccount.ID {
			t.Errorf("expected account %d, got %d", testAccount.ID, tx.AccountID)
		}
		if tx.Source != models.SourceScraped {
			t.Errorf("expected source scraped, got %s", tx.Source)
		}
		if tx.ExternalRef == "" {
			t.Error("expected derived external ref")
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		row := RawRow{KeyDate: "2025-01-15", KeyDescription: "coffee", KeyAmount: "-2,50"}

		a, err := Normalize(row, testAccount, models.SourceScraped, testUserID, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := Normalize(row, testAccount, models.SourceScraped, testUserID, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.ExternalRef != b.ExternalRef {
			t.Errorf("same row produced different refs: %q vs %q", a.ExternalRef, b.ExternalRef)
		}
	})

	t.Run("balance_breaks_ties", func(t *testing.T) {
		first := RawRow{KeyDate: "2025-01-15", KeyDescription: "coffee", KeyAmount: "-2,50", KeyBalance: "100,00"}
		second := RawRow{KeyDate: "2025-01-15", KeyDescription: "coffee", KeyAmount: "-2,50", KeyBalance: "97,50"}

		a, _ := Normalize(first, testAccount, models.SourceScraped, testUserID, now)
		b, _ := Normalize(second, testAccount, models.SourceScraped, testUserID, now)
		if a.ExternalRef == b.ExternalRef {
			t.Error("expected distinct refs for repeated purchases with different balances")
		}
	})

	t.Run("empty_description_defaults", func(t *testing.T) {
		row := RawRow{KeyDate: "2025-01-15", KeyAmount: "-2,50"}

		tx, err := Normalize(row, testAccount, models.SourceManualFile, testUserID, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tx.Description != "no description" {
			t.Errorf("expected placeholder description, got %q", tx.Description)
		}
	})

	t.Run("malformed_date", func(t *testing.T) {
		row := RawRow{KeyDate: "yesterday", KeyDescription: "x", KeyAmount: "1,00"}

		_, err := Normalize(row, testAccount, models.SourceScraped, testUserID, now)
		if !apperrors.HasCode(err, "MALFORMED_ROW") {
			t.Fatalf("expected MALFORMED_ROW, got %v", err)
		}
	})

	t.Run("malformed_amount", func(t *testing.T) {
		row := RawRow{KeyDate: "2025-01-15", KeyDescription: "x", KeyAmount: "N/A"}

		_, err := Normalize(row, testAccount, models.SourceScraped, testUserID, now)
		if !apperrors.HasCode(err, "MALFORMED_ROW") {
			t.Fatalf("expected MALFORMED_ROW, got %v", err)
		}
	})
}

func TestRowsFromSlice(t *testing.T) {
	rows := RowsFromSlice([]RawRow{
		{KeyDescription: "a"},
		{KeyDescription: "b"},
	})

	var seen []string
	for rows.Next() {
		seen = append(seen, rows.Row()[KeyDescription])
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("unexpected rows: %v", seen)
	}
	if rows.Yielded() != 2 {
		t.Errorf("expected 2 yielded, got %d", rows.Yielded())
	}
	if rows.Next() {
		t.Error("sequence restarted after exhaustion")
	}
}
