package models

// Category is a user-scoped spending category.
type Category struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	Subcategories []Subcategory `gorm:"foreignKey:CategoryID" json:"subcategories,omitempty"`
}

// Subcategory refines a category.
type Subcategory struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CategoryID uint   `gorm:"not null;index" json:"category_id"`
	Name       string `gorm:"not null" json:"name"`
}

// AssignmentOrigin records how a categorization was decided.
type AssignmentOrigin string

const (
	// OriginRule means an ordered rule matched.
	OriginRule AssignmentOrigin = "rule"
	// OriginUncategorizedDefault means no rule matched and the configured
	// default was assigned. These rows are the targets of a later re-sweep
	// once new rules exist.
	OriginUncategorizedDefault AssignmentOrigin = "uncategorized-default"
)

// TransactionCategory is the single active category assignment of a
// transaction. Re-ingestion never overwrites it; only an explicit re-run of
// the rule engine may.
type TransactionCategory struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	TransactionID uint             `gorm:"not null;uniqueIndex" json:"transaction_id"`
	CategoryID    uint             `gorm:"not null" json:"category_id"`
	SubcategoryID uint             `gorm:"not null" json:"subcategory_id"`
	RuleID        *uint            `json:"rule_id,omitempty"`
	Origin        AssignmentOrigin `gorm:"not null" json:"origin"`
}
