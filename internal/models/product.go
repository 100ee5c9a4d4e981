package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog item whose price is derived from its composition.
type Product struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SKU       string     `gorm:"size:50;not null;index" json:"sku"`
	Name      string     `gorm:"size:150;not null" json:"name"`
	// Unpublished products keep their references; only deletion releases them.
	IsActive  bool       `gorm:"not null" json:"is_active"`
	IsDeleted bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Composition []CompositionLine `gorm:"foreignKey:ProductID" json:"composition,omitempty"`
}

// CompositionLine is a weak reference from a product to one material variant.
// Quantity is grams for metals and carats for gemstones.
type CompositionLine struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	ProductID    uint            `gorm:"not null;index" json:"-"`
	Position     int             `gorm:"not null" json:"position"`
	MaterialKind MaterialKind    `gorm:"size:20;not null" json:"material_kind"`
	MaterialRef  uint            `gorm:"not null;index" json:"material_ref"`
	VariantID    uuid.UUID       `gorm:"size:36" json:"variant_id"`
	VariantIndex int             `gorm:"not null" json:"variant_index"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
}
