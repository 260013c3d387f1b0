package models

// TransactionRule maps transactions matching a pattern to a category and
// subcategory. Rules are externally configured reference data evaluated in
// Position order; the engine only reads them.
type TransactionRule struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	Position int    `gorm:"not null" json:"position"`

	// Pattern is a case-insensitive regular expression matched against the
	// normalized description.
	Pattern string `gorm:"not null" json:"pattern"`

	// Optional numeric and account scoping.
	MinAmountCents *int64 `json:"min_amount_cents,omitempty"`
	MaxAmountCents *int64 `json:"max_amount_cents,omitempty"`
	AccountID      *uint  `json:"account_id,omitempty"`

	CategoryID    uint `gorm:"not null" json:"category_id"`
	SubcategoryID uint `gorm:"not null" json:"subcategory_id"`
}
