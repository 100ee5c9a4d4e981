// Package composition stores products and their ordered material
// compositions, and prices a product from the live catalog on every read.
package composition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/catalog"
	"jewelry-backend/internal/logger"
	"jewelry-backend/internal/models"
	"jewelry-backend/internal/observability"
	"jewelry-backend/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductInput struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"` // defaults to true
}

// LineInput addresses a variant by id, by index, or by both. When both are
// given they must agree.
type LineInput struct {
	MaterialKind models.MaterialKind `json:"material_kind"`
	MaterialRef  uint                `json:"material_ref"`
	VariantID    *uuid.UUID          `json:"variant_id"`
	VariantIndex *int                `json:"variant_index"`
	Quantity     decimal.Decimal     `json:"quantity"`
}

type Store struct {
	db      *gorm.DB
	catalog *catalog.Service
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewStore(db *gorm.DB, catalogSvc *catalog.Service, baseLog *logger.Logger, timeout time.Duration) *Store {
	return &Store{
		db:      db,
		catalog: catalogSvc,
		log:     baseLog.With("service", "ProductCompositionStore"),
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" {
		return nil, apperr.Invalid("sku", "is required")
	}
	if in.Name == "" {
		return nil, apperr.Invalid("name", "is required")
	}

	p := &models.Product{SKU: in.SKU, Name: in.Name, IsActive: true}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Product{}).
			Where("sku = ? AND is_deleted = ?", p.SKU, false).
			Count(&n).Error; err != nil {
			return fmt.Errorf("check sku: %w", err)
		}
		if n > 0 {
			return &apperr.DuplicateCodeError{Kind: "product", Field: "sku", Value: p.SKU}
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created", "product_id", p.ID, "sku", p.SKU)
	return p, nil
}

// GetProduct returns a live product with its composition in position order.
func (s *Store) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p models.Product
	err := s.db.WithContext(ctx).
		Preload("Composition", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("is_deleted = ?", false).
		First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

// DeleteProduct soft-deletes a product. Its composition rows stay for
// history but no longer count as references.
func (s *Store) DeleteProduct(ctx context.Context, id uint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now})
	if res.Error != nil {
		return fmt.Errorf("delete product %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperr.NotFoundError{Entity: "product", ID: id}
	}

	s.log.Info("product soft deleted", "product_id", id)
	return nil
}

// SaveComposition validates lines against the live catalog and replaces the
// product's composition. Referenced materials are share-locked until commit
// so a concurrent SoftDelete cannot slip between validation and write.
func (s *Store) SaveComposition(ctx context.Context, productID uint, in []LineInput) (_ []models.CompositionLine, err error) {
	ctx, span := observability.StartSpan(ctx, "composition.SaveComposition",
		attribute.Int64("product.id", int64(productID)),
		attribute.Int("composition.lines", len(in)),
	)
	defer func() { observability.EndSpan(span, err) }()

	refs := make([]uint, 0, len(in))
	for i, l := range in {
		field := fmt.Sprintf("lines[%d]", i)
		if !l.MaterialKind.Valid() {
			return nil, apperr.Invalid(field+".material_kind", "must be metal or gemstone")
		}
		if l.MaterialRef == 0 {
			return nil, apperr.Invalid(field+".material_ref", "is required")
		}
		if l.VariantID == nil && l.VariantIndex == nil {
			return nil, apperr.Invalid(field, "needs variant_id or variant_index")
		}
		if !l.Quantity.IsPositive() {
			return nil, apperr.Invalid(field+".quantity", "must be greater than zero")
		}
		refs = append(refs, l.MaterialRef)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var lines []models.CompositionLine
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("is_deleted = ?", false).
			First(&p, productID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &apperr.NotFoundError{Entity: "product", ID: productID}
		}
		if err != nil {
			return fmt.Errorf("lock product %d: %w", productID, err)
		}

		materials, err := catalog.LockForComposition(tx, refs)
		if err != nil {
			return err
		}

		lines = make([]models.CompositionLine, 0, len(in))
		for i, l := range in {
			line, err := resolveLine(i, l, materials)
			if err != nil {
				return err
			}
			line.ProductID = productID
			lines = append(lines, line)
		}

		if err := tx.Where("product_id = ?", productID).Delete(&models.CompositionLine{}).Error; err != nil {
			return fmt.Errorf("clear composition: %w", err)
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return fmt.Errorf("write composition: %w", err)
			}
		}
		if err := tx.Model(&p).Update("updated_at", s.now().UTC()).Error; err != nil {
			return fmt.Errorf("touch product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("composition saved", "product_id", productID, "lines", len(lines))
	return lines, nil
}

func resolveLine(pos int, l LineInput, materials map[uint]models.Material) (models.CompositionLine, error) {
	m, ok := materials[l.MaterialRef]
	if !ok {
		return models.CompositionLine{}, &apperr.NotFoundError{Entity: "material", ID: l.MaterialRef}
	}
	if m.Kind != l.MaterialKind {
		return models.CompositionLine{}, apperr.Invalid(fmt.Sprintf("lines[%d].material_kind", pos), "material is a "+string(m.Kind))
	}

	var (
		index   int
		variant models.MaterialVariant
	)
	switch {
	case l.VariantID != nil:
		var found bool
		index, variant, found = m.VariantByID(*l.VariantID)
		if !found {
			return models.CompositionLine{}, &apperr.DanglingReferenceError{
				MaterialID: m.ID,
				VariantID:  *l.VariantID,
				Reason:     "variant id not found",
			}
		}
		if l.VariantIndex != nil && *l.VariantIndex != index {
			return models.CompositionLine{}, apperr.Invalid(fmt.Sprintf("lines[%d].variant_index", pos),
				fmt.Sprintf("is %d but the variant sits at %d", *l.VariantIndex, index))
		}
	default:
		index = *l.VariantIndex
		v, found := m.VariantAt(index)
		if !found {
			return models.CompositionLine{}, &apperr.IndexOutOfRangeError{MaterialID: m.ID, Index: index, Count: len(m.Variants)}
		}
		variant = v
	}

	if !variant.IsActive {
		return models.CompositionLine{}, &apperr.InactiveVariantError{MaterialID: m.ID, VariantIndex: index, VariantName: variant.Name}
	}

	return models.CompositionLine{
		Position:     pos,
		MaterialKind: m.Kind,
		MaterialRef:  m.ID,
		VariantID:    variant.ID,
		VariantIndex: index,
		Quantity:     l.Quantity,
	}, nil
}

// Composition returns the lines of a live product in position order.
func (s *Store) Composition(ctx context.Context, productID uint) ([]models.CompositionLine, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return p.Composition, nil
}

// PriceProduct prices a live product against the current catalog. Pricing
// failures come back as the typed errors from package pricing; no partial
// quote is ever returned.
func (s *Store) PriceProduct(ctx context.Context, productID uint) (_ pricing.Quote, err error) {
	ctx, span := observability.StartSpan(ctx, "composition.PriceProduct", attribute.Int64("product.id", int64(productID)))
	defer func() { observability.EndSpan(span, err) }()

	lines, err := s.Composition(ctx, productID)
	if err != nil {
		return pricing.Quote{}, err
	}

	snap, err := s.catalog.Snapshot(ctx, pricing.MaterialRefs(lines))
	if err != nil {
		return pricing.Quote{}, err
	}

	q, err := pricing.Price(lines, snap)
	if err != nil {
		if apperr.IsPricingFailure(err) {
			s.log.Warn("price unavailable", "product_id", productID, "error", err.Error())
		}
		return pricing.Quote{}, err
	}
	return q, nil
}
