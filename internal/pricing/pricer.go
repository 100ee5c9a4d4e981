// Package pricing computes a product price from its composition and an
// explicit catalog snapshot. It has no state and touches no storage.
package pricing

import (
	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the currency precision the subtotal is rounded to.
const MinorUnitPlaces = 2

type LineBreakdown struct {
	Position     int                 `json:"position"`
	MaterialKind models.MaterialKind `json:"material_kind"`
	MaterialID   uint                `json:"material_id"`
	MaterialCode string              `json:"material_code"`
	VariantID    uuid.UUID           `json:"variant_id"`
	VariantIndex int                 `json:"variant_index"`
	VariantName  string              `json:"variant_name"`
	Quantity     decimal.Decimal     `json:"quantity"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	Base         decimal.Decimal     `json:"base"`
	Wastage      decimal.Decimal     `json:"wastage"`
	Making       decimal.Decimal     `json:"making"`
	LineTotal    decimal.Decimal     `json:"line_total"`
}

type Quote struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Breakdown []LineBreakdown `json:"breakdown"`
}

// SubtotalString renders the subtotal with exactly MinorUnitPlaces decimals.
func (q Quote) SubtotalString() string {
	return q.Subtotal.StringFixed(MinorUnitPlaces)
}

// Price prices every line against snapshot. Any unresolvable or inactive
// reference fails the whole computation; no partial total is returned.
// Line values stay unrounded, rounding happens once on the subtotal.
func Price(lines []models.CompositionLine, snapshot Snapshot) (Quote, error) {
	breakdown := make([]LineBreakdown, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		b, err := priceLine(line, snapshot)
		if err != nil {
			return Quote{}, err
		}
		total = total.Add(b.LineTotal)
		breakdown = append(breakdown, b)
	}

	return Quote{
		Subtotal:  total.Round(MinorUnitPlaces),
		Breakdown: breakdown,
	}, nil
}

func priceLine(line models.CompositionLine, snapshot Snapshot) (LineBreakdown, error) {
	if line.Quantity.IsNegative() {
		return LineBreakdown{}, apperr.Invalid("quantity", "must not be negative")
	}

	m, ok := snapshot.Material(line.MaterialRef)
	if !ok {
		return LineBreakdown{}, dangling(line, "material does not exist")
	}
	if m.IsDeleted {
		return LineBreakdown{}, dangling(line, "material is deleted")
	}
	if m.Kind != line.MaterialKind {
		return LineBreakdown{}, dangling(line, "material is a "+string(m.Kind))
	}

	index, variant, err := resolveVariant(m, line)
	if err != nil {
		return LineBreakdown{}, err
	}
	if !variant.IsActive {
		return LineBreakdown{}, &apperr.InactiveVariantError{
			MaterialID:   m.ID,
			VariantIndex: index,
			VariantName:  variant.Name,
		}
	}

	b := LineBreakdown{
		Position:     line.Position,
		MaterialKind: m.Kind,
		MaterialID:   m.ID,
		MaterialCode: m.Code,
		VariantID:    variant.ID,
		VariantIndex: index,
		VariantName:  variant.Name,
		Quantity:     line.Quantity,
		UnitPrice:    variant.UnitPrice,
		Base:         line.Quantity.Mul(variant.UnitPrice),
		Wastage:      decimal.Zero,
		Making:       decimal.Zero,
	}

	if m.Kind == models.MaterialKindMetal {
		b.Wastage = percentOf(b.Base, m.DefaultWastagePercentage)
		if m.DefaultMakingChargeType == models.MakingChargePercentage {
			b.Making = percentOf(b.Base, m.DefaultMakingCharges)
		} else {
			b.Making = m.DefaultMakingCharges
		}
	}

	b.LineTotal = b.Base.Add(b.Wastage).Add(b.Making)
	return b, nil
}

// resolveVariant prefers the stable variant id and falls back to the
// position for lines saved before ids existed.
func resolveVariant(m models.Material, line models.CompositionLine) (int, models.MaterialVariant, error) {
	if line.VariantID != uuid.Nil {
		index, v, ok := m.VariantByID(line.VariantID)
		if !ok {
			return 0, models.MaterialVariant{}, dangling(line, "variant id not found")
		}
		return index, v, nil
	}

	v, ok := m.VariantAt(line.VariantIndex)
	if !ok {
		return 0, models.MaterialVariant{}, dangling(line, "variant index out of range")
	}
	return line.VariantIndex, v, nil
}

func dangling(line models.CompositionLine, reason string) error {
	return &apperr.DanglingReferenceError{
		MaterialID:   line.MaterialRef,
		VariantIndex: line.VariantIndex,
		VariantID:    line.VariantID,
		Reason:       reason,
	}
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Shift(-2)
}
