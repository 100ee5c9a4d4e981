package catalog

import (
	"context"
	"fmt"
	"time"

	"jewelry-backend/internal/models"

	"gorm.io/gorm"
)

// Guard answers "is this material still in use?" for deletions.
type Guard struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGuard(db *gorm.DB, timeout time.Duration) *Guard {
	return &Guard{db: db, timeout: timeout}
}

// CountReferences returns how many live products have at least one
// composition line on materialID, whatever variant the line points at.
func (g *Guard) CountReferences(ctx context.Context, tx *gorm.DB, materialID uint) (int64, error) {
	if tx == nil {
		tx = g.db
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var count int64
	err := tx.WithContext(ctx).
		Model(&models.CompositionLine{}).
		Joins("JOIN products ON products.id = composition_lines.product_id").
		Where("composition_lines.material_ref = ?", materialID).
		Where("products.is_deleted = ?", false).
		Distinct("composition_lines.product_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count references to material %d: %w", materialID, err)
	}
	return count, nil
}
