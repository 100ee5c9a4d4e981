package catalog

import (
	"fmt"
	"strings"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prices must fit the price history columns (decimal(14,4)) exactly, so an
// entry read back always equals the variant price it recorded.
const PriceScale = 4

var maxPrice = decimal.New(1, 10)

func validatePrice(field string, p decimal.Decimal) error {
	if p.IsNegative() {
		return apperr.Invalid(field, "must not be negative")
	}
	if !p.Equal(p.Truncate(PriceScale)) {
		return apperr.Invalid(field, fmt.Sprintf("must have at most %d decimal places", PriceScale))
	}
	if p.GreaterThanOrEqual(maxPrice) {
		return apperr.Invalid(field, "must be less than "+maxPrice.String())
	}
	return nil
}

type VariantInput struct {
	// Set on replace to keep a variant's identity; empty means a new variant.
	ID        *uuid.UUID      `json:"id"`
	Name      string          `json:"name"`
	Purity    string          `json:"purity"`
	Cut       string          `json:"cut"`
	Clarity   string          `json:"clarity"`
	Shape     string          `json:"shape"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	IsActive  *bool           `json:"is_active"` // defaults to true
}

type MaterialInput struct {
	Kind                     models.MaterialKind     `json:"kind"`
	Code                     string                  `json:"code"`
	Name                     string                  `json:"name"`
	ColorOrType              string                  `json:"color_or_type"`
	Variants                 []VariantInput          `json:"variants"`
	DefaultWastagePercentage decimal.Decimal         `json:"default_wastage_percentage"`
	DefaultMakingChargeType  models.MakingChargeType `json:"default_making_charge_type"`
	DefaultMakingCharges     decimal.Decimal         `json:"default_making_charges"`
}

// normalize trims text fields and upper-cases the code.
func (in *MaterialInput) normalize() {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.ColorOrType = strings.TrimSpace(in.ColorOrType)
	for i := range in.Variants {
		in.Variants[i].Name = strings.TrimSpace(in.Variants[i].Name)
	}
}

func (in *MaterialInput) validate() error {
	if !in.Kind.Valid() {
		return apperr.Invalid("kind", "must be metal or gemstone")
	}
	if in.Code == "" {
		return apperr.Invalid("code", "is required")
	}
	if in.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if len(in.Variants) == 0 {
		return apperr.Invalid("variants", "must contain at least one variant")
	}

	seen := make(map[uuid.UUID]struct{}, len(in.Variants))
	for i, v := range in.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		if v.Name == "" {
			return apperr.Invalid(field+".name", "is required")
		}
		if err := validatePrice(field+".unit_price", v.UnitPrice); err != nil {
			return err
		}
		if v.ID != nil {
			if _, dup := seen[*v.ID]; dup {
				return apperr.Invalid(field+".id", "is repeated")
			}
			seen[*v.ID] = struct{}{}
		}
	}

	switch in.Kind {
	case models.MaterialKindMetal:
		if in.DefaultWastagePercentage.IsNegative() {
			return apperr.Invalid("default_wastage_percentage", "must not be negative")
		}
		if in.DefaultMakingCharges.IsNegative() {
			return apperr.Invalid("default_making_charges", "must not be negative")
		}
		switch in.DefaultMakingChargeType {
		case models.MakingChargeFlat, models.MakingChargePercentage:
		case "":
			in.DefaultMakingChargeType = models.MakingChargeFlat
		default:
			return apperr.Invalid("default_making_charge_type", "must be flat or percentage")
		}
	case models.MaterialKindGemstone:
		if !in.DefaultWastagePercentage.IsZero() || !in.DefaultMakingCharges.IsZero() || in.DefaultMakingChargeType != "" {
			return apperr.Invalid("default_making_charges", "gemstones carry no wastage or making charge")
		}
	}
	return nil
}

func (v VariantInput) toVariant(id uuid.UUID) models.MaterialVariant {
	active := true
	if v.IsActive != nil {
		active = *v.IsActive
	}
	return models.MaterialVariant{
		ID:        id,
		Name:      v.Name,
		Purity:    strings.TrimSpace(v.Purity),
		Cut:       strings.TrimSpace(v.Cut),
		Clarity:   strings.TrimSpace(v.Clarity),
		Shape:     strings.TrimSpace(v.Shape),
		UnitPrice: v.UnitPrice,
		IsActive:  active,
	}
}

func (in *MaterialInput) applyTo(m *models.Material) {
	m.Kind = in.Kind
	m.Code = in.Code
	m.Name = in.Name
	m.ColorOrType = in.ColorOrType
	m.DefaultWastagePercentage = in.DefaultWastagePercentage
	m.DefaultMakingChargeType = in.DefaultMakingChargeType
	m.DefaultMakingCharges = in.DefaultMakingCharges
}
