package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"bankfeed/internal/models"
	"bankfeed/internal/uuid"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a fresh user id for scoping fixtures.
func NewUserID() string {
	return uuid.New()
}

// CreateTestBank creates a bank owned by the given user.
func CreateTestBank(t *testing.T, db *gorm.DB, userID string) *models.Bank {
	t.Helper()

	bank := &models.Bank{
		Name:   fmt.Sprintf("testbank%d", nextID()),
		UserID: userID,
	}
	if err := db.Create(bank).Error; err != nil {
		t.Fatalf("failed to create test bank: %v", err)
	}
	return bank
}

// CreateTestAccount creates a bank account with a masked number.
func CreateTestAccount(t *testing.T, db *gorm.DB, bankID uint) *models.Account {
	t.Helper()
	return CreateTestAccountOfType(t, db, bankID, models.AccountTypeBankID)
}

// CreateTestAccountOfType creates an account with the given id type.
func CreateTestAccountOfType(t *testing.T, db *gorm.DB, bankID uint, accountType models.AccountType) *models.Account {
	t.Helper()

	account := &models.Account{
		BankID:        bankID,
		AccountType:   accountType,
		AccountNumber: fmt.Sprintf("ES00****%04d", nextID()),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestCategory creates a category with one subcategory and returns both.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string) (*models.Category, *models.Subcategory) {
	t.Helper()

	category := &models.Category{
		Name:   fmt.Sprintf("Test Category %d", nextID()),
		UserID: userID,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}

	subcategory := &models.Subcategory{
		CategoryID: category.ID,
		Name:       fmt.Sprintf("Test Subcategory %d", nextID()),
	}
	if err := db.Create(subcategory).Error; err != nil {
		t.Fatalf("failed to create test subcategory: %v", err)
	}
	return category, subcategory
}

// NewLedgerTransaction builds (but does not persist) a canonical transaction
// for the given account with a derived external ref.
func NewLedgerTransaction(accountID uint, description string, amountCents int64, date time.Time) models.Transaction {
	return models.Transaction{
		ExternalRef:   uuid.ContentRef("test", date.Format("2006-01-02 15:04:05"), description, "", fmt.Sprintf("%d", amountCents)),
		AccountID:     accountID,
		OperationDate: date,
		AmountCents:   amountCents,
		Description:   description,
		Source:        models.SourceScraped,
		InsertedAt:    time.Now(),
	}
}
