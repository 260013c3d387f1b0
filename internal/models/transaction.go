package models

import "time"

// Source tags which ingestion path produced a transaction.
type Source string

const (
	SourceScraped            Source = "scraped"
	SourceManualFile         Source = "manual-file"
	SourceHistoricalBackfill Source = "historical-backfill"
)

// Transaction is one canonical ledger row. (AccountID, ExternalRef) uniquely
// identifies it; the unique index is the serialization point for concurrent
// ingestion of the same key.
type Transaction struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ExternalRef is the source-assigned id, or a deterministic content
	// hash when the source has none, so re-ingesting the same statement
	// window is naturally idempotent.
	ExternalRef string `gorm:"type:uuid;not null;uniqueIndex:idx_tx_account_external_ref,priority:2" json:"external_ref"`
	AccountID   uint   `gorm:"not null;uniqueIndex:idx_tx_account_external_ref,priority:1" json:"account_id"`

	OperationDate time.Time  `gorm:"not null;index" json:"operation_date"`
	ValueDate     *time.Time `json:"value_date,omitempty"`

	// AmountCents is the signed amount in cents of the account currency.
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Description string `gorm:"not null" json:"description"`

	Source     Source    `gorm:"not null" json:"source"`
	InsertedAt time.Time `gorm:"not null" json:"inserted_at"`

	// UserDescription is an optional override set later by the user,
	// never by ingestion.
	UserDescription *string `json:"user_description,omitempty"`

	Account        Account              `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Categorization *TransactionCategory `gorm:"foreignKey:TransactionID" json:"categorization,omitempty"`
}
