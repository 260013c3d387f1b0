package models

// AccountType distinguishes how a bank identifies the account: a regular
// bank account id or a virtual card id.
type AccountType string

const (
	AccountTypeBankID    AccountType = "BANK_ID"
	AccountTypeVirtualID AccountType = "VIRTUAL_ID"
)

// Account is one ledger account at a bank. The account number is stored
// masked (e.g. "ES80****7238"). Immutable reference data.
type Account struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	BankID        uint        `gorm:"not null;index" json:"bank_id"`
	AccountType   AccountType `gorm:"not null" json:"account_type"`
	AccountNumber string      `gorm:"not null" json:"account_number"`

	Bank Bank `gorm:"foreignKey:BankID" json:"bank,omitempty"`
}
