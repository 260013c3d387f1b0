// Package ingest writes categorized transactions into the ledger. The
// Reconciler makes ingestion idempotent: re-running a scrape or re-importing
// an overlapping statement window never duplicates rows and never disturbs
// the category assignment of rows that already exist.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
)

// Item pairs a normalized transaction with the category assignment the rule
// engine chose for it.
type Item struct {
	Transaction models.Transaction
	Assignment  models.TransactionCategory

	// BankID, when set, is the bank the target account must belong to.
	// A mismatch is a write failure, not a silent cross-bank insert.
	BankID uint
}

// Failure records one item that could not be written.
type Failure struct {
	ExternalRef string `json:"external_ref"`
	Reason      string `json:"reason"`
}

// Report summarizes one ingestion batch. Inserted + SkippedDuplicate +
// Failed equals the number of items offered.
type Report struct {
	Inserted         int       `json:"inserted"`
	SkippedDuplicate int       `json:"skipped_duplicate"`
	Failed           int       `json:"failed"`
	Failures         []Failure `json:"failures,omitempty"`
}

// Add merges another report into this one.
func (r *Report) Add(other Report) {
	r.Inserted += other.Inserted
	r.SkippedDuplicate += other.SkippedDuplicate
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// Reconciler handles idempotent ledger writes.
type Reconciler struct {
	db *gorm.DB
}

// NewReconciler creates a new Reconciler.
func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Ingest writes a batch of items into the ledger. Each item is inserted in
// its own transaction so a failure affects only that item; the rest of the
// batch proceeds and the failure lands in the report instead of aborting
// the run.
func (r *Reconciler) Ingest(ctx context.Context, items []Item) Report {
	var report Report
	for i := range items {
		if err := ctx.Err(); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				ExternalRef: items[i].Transaction.ExternalRef,
				Reason:      err.Error(),
			})
			continue
		}
		switch err := r.IngestOne(ctx, &items[i]); {
		case err == nil:
			report.Inserted++
		case errors.Is(err, errDuplicate):
			report.SkippedDuplicate++
		default:
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				ExternalRef: items[i].Transaction.ExternalRef,
				Reason:      err.Error(),
			})
		}
	}
	return report
}

// errDuplicate is internal to the reconciler; callers see it only as a
// SkippedDuplicate count.
var errDuplicate = errors.New("duplicate transaction")

// IngestOne inserts a single transaction plus its assignment atomically.
// A duplicate (account_id, external_ref) is detected by the unique index,
// skipped, and the existing row's assignment is left untouched. Two
// concurrent ingests of the same key serialize on that index: exactly one
// inserts.
func (r *Reconciler) IngestOne(ctx context.Context, item *Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		query := tx.Model(&models.Account{}).Where("id = ?", item.Transaction.AccountID)
		if item.BankID != 0 {
			query = query.Where("bank_id = ?", item.BankID)
		}
		if err := query.Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, err)
		}
		if count == 0 {
			if item.BankID != 0 {
				return apperrors.Wrap(apperrors.ErrStoreWrite,
					fmt.Errorf("account %d does not exist under bank %d", item.Transaction.AccountID, item.BankID))
			}
			return apperrors.Wrap(apperrors.ErrStoreWrite,
				fmt.Errorf("account %d does not exist", item.Transaction.AccountID))
		}

		transaction := item.Transaction
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "external_ref"}},
			DoNothing: true,
		}).Create(&transaction)
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, result.Error)
		}
		if result.RowsAffected == 0 {
			// Already in the ledger. Returning here rolls back nothing of
			// consequence and keeps the existing assignment as-is.
			return errDuplicate
		}

		assignment := item.Assignment
		assignment.TransactionID = transaction.ID
		if err := tx.Create(&assignment).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, err)
		}
		return nil
	})
}
