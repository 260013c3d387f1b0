package ingest

import (
	"context"

	"gorm.io/gorm"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
)

// PurgeResult reports what a purge removed.
type PurgeResult struct {
	Transactions int64 `json:"transactions"`
	Assignments  int64 `json:"assignments"`
}

// Cleaner removes a user's ledger rows ahead of a historical backfill.
type Cleaner struct {
	db *gorm.DB
}

// NewCleaner creates a new Cleaner.
func NewCleaner(db *gorm.DB) *Cleaner {
	return &Cleaner{db: db}
}

// Purge deletes every transaction of the user's accounts together with the
// category assignments, in a single database transaction. Either both
// deletions land or neither does; a half-purged ledger would make the
// following backfill double-count.
func (c *Cleaner) Purge(ctx context.Context, userID string) (*PurgeResult, error) {
	var result PurgeResult
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accountIDs := tx.Model(&models.Account{}).
			Select("accounts.id").
			Joins("JOIN banks ON banks.id = accounts.bank_id").
			Where("banks.user_id = ?", userID)

		transactionIDs := tx.Model(&models.Transaction{}).
			Select("id").
			Where("account_id IN (?)", accountIDs)

		res := tx.Where("transaction_id IN (?)", transactionIDs).
			Delete(&models.TransactionCategory{})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, res.Error)
		}
		result.Assignments = res.RowsAffected

		res = tx.Where("account_id IN (?)", accountIDs).
			Delete(&models.Transaction{})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, res.Error)
		}
		result.Transactions = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
