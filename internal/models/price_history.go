package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceHistoryEntry is one row of the append-only price ledger.
// VariantName is captured by value so later renames do not rewrite history.
type PriceHistoryEntry struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// "metal" or "gemstone"
	EntityType string `gorm:"size:20;not null;index" json:"entity_type"`
	EntityID   uint   `gorm:"not null;index" json:"entity_id"`

	VariantID    uuid.UUID `gorm:"size:36" json:"variant_id"`
	VariantIndex int       `json:"variant_index"`
	VariantName  string    `gorm:"size:100" json:"variant_name"`

	OldPrice decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"old_price"`
	NewPrice decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"new_price"`

	ChangedAt   time.Time `gorm:"not null;index" json:"changed_at"`
	ChangedByID uint      `json:"changed_by_id"`
	ChangedBy   string    `gorm:"size:100" json:"changed_by"`
}

func (PriceHistoryEntry) TableName() string {
	return "price_history"
}
