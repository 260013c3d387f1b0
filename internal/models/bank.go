package models

// Bank identifies one bank integration owned by a user. Reference data,
// created from configuration and migrations, never mutated at runtime.
type Bank struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null;uniqueIndex:idx_banks_user_name" json:"name"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_banks_user_name" json:"user_id"`

	Accounts []Account `gorm:"foreignKey:BankID" json:"accounts,omitempty"`
}
