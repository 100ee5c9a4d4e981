package testutil

import (
	"testing"

	"jewelry-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedGold22K inserts a metal with two active variants: 22K yellow at 6000/g
// and 22K white at 6050/g, 3% wastage and a flat 500 making charge.
func SeedGold22K(tb testing.TB, db *gorm.DB) *models.Material {
	tb.Helper()
	m := &models.Material{
		Kind:        models.MaterialKindMetal,
		Code:        "GOLD22K",
		Name:        "Gold22K",
		ColorOrType: "yellow",
		Variants: []models.MaterialVariant{
			{ID: uuid.New(), Name: "22K yellow", Purity: "916", UnitPrice: Dec("6000"), IsActive: true},
			{ID: uuid.New(), Name: "22K white", Purity: "916", UnitPrice: Dec("6050"), IsActive: true},
		},
		DefaultWastagePercentage: Dec("3"),
		DefaultMakingChargeType:  models.MakingChargeFlat,
		DefaultMakingCharges:     Dec("500"),
	}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed gold: %v", err)
	}
	return m
}

func SeedDiamond(tb testing.TB, db *gorm.DB) *models.Material {
	tb.Helper()
	m := &models.Material{
		Kind:        models.MaterialKindGemstone,
		Code:        "DIA",
		Name:        "Diamond",
		ColorOrType: "white",
		Variants: []models.MaterialVariant{
			{ID: uuid.New(), Name: "VS1 round", Cut: "excellent", Clarity: "VS1", Shape: "round", UnitPrice: Dec("45000"), IsActive: true},
		},
	}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed diamond: %v", err)
	}
	return m
}

// SeedProduct inserts a product with the given composition lines, bypassing
// save-time validation so tests can build dangling states directly.
func SeedProduct(tb testing.TB, db *gorm.DB, sku string, lines ...models.CompositionLine) *models.Product {
	tb.Helper()
	p := &models.Product{SKU: sku, Name: sku}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	for i := range lines {
		lines[i].ProductID = p.ID
		lines[i].Position = i
		if err := db.Create(&lines[i]).Error; err != nil {
			tb.Fatalf("seed composition line: %v", err)
		}
	}
	p.Composition = lines
	return p
}

func PtrBool(v bool) *bool { return &v }
