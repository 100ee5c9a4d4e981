package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MaterialKind string

const (
	MaterialKindMetal    MaterialKind = "metal"
	MaterialKindGemstone MaterialKind = "gemstone"
)

func (k MaterialKind) Valid() bool {
	return k == MaterialKindMetal || k == MaterialKindGemstone
}

// UnitLabel is the quantity unit a composition line uses for this kind.
func (k MaterialKind) UnitLabel() string {
	if k == MaterialKindGemstone {
		return "ct"
	}
	return "g"
}

type MakingChargeType string

const (
	MakingChargeFlat       MakingChargeType = "flat"
	MakingChargePercentage MakingChargeType = "percentage"
)

// MaterialVariant is a priced sub-option of a material (22K vs 18K, VS1 round vs oval...).
// It lives inside the material row; ID is stable, the slice position is not.
type MaterialVariant struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Purity    string          `json:"purity,omitempty"`  // metal
	Cut       string          `json:"cut,omitempty"`     // gemstone
	Clarity   string          `json:"clarity,omitempty"` // gemstone
	Shape     string          `json:"shape,omitempty"`   // gemstone
	UnitPrice decimal.Decimal `json:"unit_price"`        // per gram (metal) or per carat (gemstone)
	IsActive  bool            `json:"is_active"`
}

type Material struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Kind        MaterialKind `gorm:"size:20;not null;index" json:"kind"`
	Code        string       `gorm:"size:50;not null" json:"code"`
	Name        string       `gorm:"size:100;not null" json:"name"`
	ColorOrType string       `gorm:"size:100" json:"color_or_type"`

	Variants datatypes.JSONSlice[MaterialVariant] `gorm:"not null" json:"variants"`

	// Metal only; zero for gemstones.
	DefaultWastagePercentage decimal.Decimal  `gorm:"type:decimal(7,4);not null;default:0" json:"default_wastage_percentage"`
	DefaultMakingChargeType  MakingChargeType `gorm:"size:20" json:"default_making_charge_type,omitempty"`
	DefaultMakingCharges     decimal.Decimal  `gorm:"type:decimal(14,4);not null;default:0" json:"default_making_charges"`

	// Soft delete is an explicit column, not gorm.DeletedAt: every query states
	// whether it wants deleted rows (see catalog.Filter).
	IsDeleted bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariantAt returns the variant at a positional index.
func (m *Material) VariantAt(index int) (MaterialVariant, bool) {
	if index < 0 || index >= len(m.Variants) {
		return MaterialVariant{}, false
	}
	return m.Variants[index], true
}

// VariantByID returns the variant with the given stable id and its current position.
func (m *Material) VariantByID(id uuid.UUID) (int, MaterialVariant, bool) {
	if id == uuid.Nil {
		return -1, MaterialVariant{}, false
	}
	for i, v := range m.Variants {
		if v.ID == id {
			return i, v, true
		}
	}
	return -1, MaterialVariant{}, false
}
