// Package normalize maps raw scraped or imported rows into canonical
// transactions. Normalization is pure: the same row, account and source
// always produce the same transaction, including its derived external ref.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
	"bankfeed/internal/uuid"
)

// dateFormats are tried in order. Banks in the corpus produce ISO dates,
// ISO timestamps (with and without zone) and Spanish day-first dates.
var dateFormats = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

const noDescription = "no description"

// Normalize converts one raw row belonging to the given account into a
// canonical transaction. It fails with MALFORMED_ROW when the date or the
// amount cannot be parsed; it never coerces either to a default. The user
// id participates in external-ref derivation so refs cannot collide across
// users sharing a store.
func Normalize(row RawRow, account models.Account, source models.Source, userID string, now time.Time) (models.Transaction, error) {
	date, err := ParseDate(row[KeyDate])
	if err != nil {
		return models.Transaction{}, apperrors.Wrap(
			apperrors.WithMessage(apperrors.ErrMalformedRow, "unparseable date "+strings.TrimSpace(row[KeyDate])), err)
	}

	amount, err := ParseAmount(row[KeyAmount])
	if err != nil {
		return models.Transaction{}, apperrors.Wrap(
			apperrors.WithMessage(apperrors.ErrMalformedRow, "unparseable amount "+strings.TrimSpace(row[KeyAmount])), err)
	}

	description := strings.ToLower(strings.TrimSpace(row[KeyDescription]))
	if description == "" {
		description = noDescription
	}

	valueDate := date
	return models.Transaction{
		ExternalRef:   externalRef(row, userID, date, description, amount),
		AccountID:     account.ID,
		OperationDate: date,
		ValueDate:     &valueDate,
		AmountCents:   amount,
		Description:   description,
		Source:        source,
		InsertedAt:    now,
	}, nil
}

// externalRef derives the deterministic dedup key. Field order and
// formatting must stay stable forever: changing either re-keys every
// previously ingested transaction.
func externalRef(row RawRow, userID string, date time.Time, description string, amountCents int64) string {
	fields := []string{
		userID,
		date.Format("2006-01-02 15:04:05"),
		description,
		strings.ToLower(strings.TrimSpace(row[KeyCategory])),
		decimal.New(amountCents, -2).String(),
	}
	// The running balance, when the source reports one, disambiguates
	// identical purchases on the same day.
	if balance, ok := row[KeyBalance]; ok && strings.TrimSpace(balance) != "" {
		if cents, err := ParseAmount(balance); err == nil {
			fields = append(fields, decimal.New(cents, -2).String())
		}
	}
	return uuid.ContentRef(fields...)
}

// ParseDate parses any of the date representations the banks produce.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseAmount parses a signed monetary amount into cents. Both the plain
// form ("-1234.56") and the Spanish locale form ("-1.234,56") are accepted;
// which one applies is decided by the rightmost separator.
func ParseAmount(raw string) (int64, error) {
	cleaned := strings.NewReplacer("€", "", " ", "", " ", "", "\n", "").Replace(strings.TrimSpace(raw))

	if comma := strings.LastIndexByte(cleaned, ','); comma > strings.LastIndexByte(cleaned, '.') {
		// Spanish format: dots are thousand separators, comma is decimal.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, err
	}
	return value.Round(2).Shift(2).IntPart(), nil
}
