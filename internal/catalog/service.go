// Package catalog owns the metal and gemstone catalogs: creation, full
// replacement, per-variant price changes with their audit entries, and
// reference-guarded soft deletion.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/audit"
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

// Filter is passed to every catalog read. The zero value means live rows of
// any kind; deleted rows are only returned when IncludeDeleted is set.
type Filter struct {
	Kind           models.MaterialKind
	IncludeDeleted bool
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	return q
}

type Service struct {
	db      *gorm.DB
	audit   *audit.Log
	guard   *Guard
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewService(db *gorm.DB, auditLog *audit.Log, guard *Guard, baseLog *logger.Logger, timeout time.Duration) *Service {
	return &Service{
		db:      db,
		audit:   auditLog,
		guard:   guard,
		log:     baseLog.With("service", "MaterialCatalog"),
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// PriceUpdate is the result of a price change. Entry is nil when the stored
// price already equalled the requested one and nothing was written.
type PriceUpdate struct {
	Material *models.Material
	Entry    *models.PriceHistoryEntry
}

func (s *Service) Create(ctx context.Context, in MaterialInput, actor models.Actor) (*models.Material, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	m := &models.Material{}
	in.applyTo(m)
	variants := make([]models.MaterialVariant, 0, len(in.Variants))
	for i, v := range in.Variants {
		if v.ID != nil {
			return nil, apperr.Invalid(fmt.Sprintf("variants[%d].id", i), "is assigned by the catalog")
		}
		variants = append(variants, v.toVariant(uuid.New()))
	}
	m.Variants = variants

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, m); err != nil {
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("write material: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.translateWriteError(ctx, err, m)
	}

	s.log.Info("material created", "material_id", m.ID, "kind", m.Kind, "code", m.Code, "actor", actor.Name)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uint, f Filter) (*models.Material, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var m models.Material
	err := f.apply(s.db.WithContext(ctx)).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "material", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get material %d: %w", id, err)
	}
	return &m, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Material, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out []models.Material
	if err := f.apply(s.db.WithContext(ctx)).Order("kind asc").Order("code asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

// Replace overwrites a live material. Variants supplied with an id keep it;
// the rest get new ids. Variants left out are dropped, and compositions that
// still point at them surface as dangling references when priced.
// Every price that changes is logged in the same transaction.
func (s *Service) Replace(ctx context.Context, id uint, in MaterialInput, actor models.Actor) (*models.Material, []models.PriceHistoryEntry, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		m       *models.Material
		entries []models.PriceHistoryEntry
		dropped int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = lockLive(tx, id)
		if err != nil {
			return err
		}
		if in.Kind != m.Kind {
			return apperr.Invalid("kind", "cannot change from "+string(m.Kind))
		}

		existing := make(map[uuid.UUID]models.MaterialVariant, len(m.Variants))
		for _, v := range m.Variants {
			existing[v.ID] = v
		}

		changedAt := s.now().UTC()
		variants := make([]models.MaterialVariant, 0, len(in.Variants))
		for i, vin := range in.Variants {
			if vin.ID == nil {
				variants = append(variants, vin.toVariant(uuid.New()))
				continue
			}
			old, ok := existing[*vin.ID]
			if !ok {
				return apperr.Invalid(fmt.Sprintf("variants[%d].id", i), "does not belong to this material")
			}
			delete(existing, *vin.ID)

			v := vin.toVariant(old.ID)
			variants = append(variants, v)
			if !old.UnitPrice.Equal(v.UnitPrice) {
				entries = append(entries, newEntry(m, i, v, old.UnitPrice, v.UnitPrice, changedAt, actor))
			}
		}
		dropped = len(existing)

		in.applyTo(m)
		m.Variants = variants
		if err := checkUnique(tx, m); err != nil {
			return err
		}
		if err := tx.Save(m).Error; err != nil {
			return fmt.Errorf("write material: %w", err)
		}

		for i := range entries {
			if err := s.audit.Append(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.translateWriteError(ctx, err, m)
	}

	s.log.Info("material replaced", "material_id", id, "price_changes", len(entries), "dropped_variants", dropped, "actor", actor.Name)
	return m, entries, nil
}

// UpdateVariantPrice sets the unit price of the variant at variantIndex.
func (s *Service) UpdateVariantPrice(ctx context.Context, id uint, variantIndex int, newPrice decimal.Decimal, actor models.Actor) (*PriceUpdate, error) {
	return s.updatePrice(ctx, id, newPrice, actor, func(m *models.Material) (int, error) {
		if variantIndex < 0 || variantIndex >= len(m.Variants) {
			return 0, &apperr.IndexOutOfRangeError{MaterialID: m.ID, Index: variantIndex, Count: len(m.Variants)}
		}
		return variantIndex, nil
	})
}

// UpdateVariantPriceByID is UpdateVariantPrice addressed by stable variant id.
func (s *Service) UpdateVariantPriceByID(ctx context.Context, id uint, variantID uuid.UUID, newPrice decimal.Decimal, actor models.Actor) (*PriceUpdate, error) {
	return s.updatePrice(ctx, id, newPrice, actor, func(m *models.Material) (int, error) {
		index, _, ok := m.VariantByID(variantID)
		if !ok {
			return 0, &apperr.NotFoundError{Entity: "variant of material", ID: m.ID}
		}
		return index, nil
	})
}

// RevertPriceChange sets the variant of a logged change back to that entry's
// old price. History is never rewritten: the revert is a new change with its
// own entry.
func (s *Service) RevertPriceChange(ctx context.Context, entryID uint, actor models.Actor) (*PriceUpdate, error) {
	entry, err := s.audit.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return s.UpdateVariantPriceByID(ctx, entry.EntityID, entry.VariantID, entry.OldPrice, actor)
}

// updatePrice re-reads the material under a row lock, so the old price in the
// audit entry is the value being overwritten, never one read earlier in the
// request. Concurrent calls on one material serialize on that lock.
func (s *Service) updatePrice(ctx context.Context, id uint, newPrice decimal.Decimal, actor models.Actor, locate func(*models.Material) (int, error)) (_ *PriceUpdate, err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.UpdateVariantPrice", attribute.Int64("material.id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	if err := validatePrice("new_price", newPrice); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := &PriceUpdate{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockLive(tx, id)
		if err != nil {
			return err
		}
		index, err := locate(m)
		if err != nil {
			return err
		}
		res.Material = m

		oldPrice := m.Variants[index].UnitPrice
		if oldPrice.Equal(newPrice) {
			return nil
		}

		m.Variants[index].UnitPrice = newPrice
		if err := tx.Model(m).Update("variants", m.Variants).Error; err != nil {
			return fmt.Errorf("write variant price: %w", err)
		}

		entry := newEntry(m, index, m.Variants[index], oldPrice, newPrice, s.now().UTC(), actor)
		if err := s.audit.Append(ctx, tx, &entry); err != nil {
			return err
		}
		res.Entry = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Entry == nil {
		s.log.Debug("variant price unchanged", "material_id", id, "price", newPrice.String())
	} else {
		s.log.Info("variant price updated",
			"material_id", id,
			"variant", res.Entry.VariantName,
			"old_price", res.Entry.OldPrice.String(),
			"new_price", res.Entry.NewPrice.String(),
			"actor", actor.Name,
		)
	}
	return res, nil
}

// SoftDelete marks a material deleted when no live product references it.
// The reference count and the delete run under the material's row lock;
// composition saves take a shared lock on the same row.
func (s *Service) SoftDelete(ctx context.Context, id uint, actor models.Actor) (err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.SoftDelete", attribute.Int64("material.id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockLive(tx, id)
		if err != nil {
			return err
		}

		count, err := s.guard.CountReferences(ctx, tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &apperr.ReferencedError{MaterialID: id, Count: count}
		}

		now := s.now().UTC()
		if err := tx.Model(m).Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error; err != nil {
			return fmt.Errorf("soft delete material %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		var referenced *apperr.ReferencedError
		if errors.As(err, &referenced) {
			s.log.Info("material delete blocked", "material_id", id, "references", referenced.Count, "actor", actor.Name)
		}
		return err
	}

	s.log.Info("material soft deleted", "material_id", id, "actor", actor.Name)
	return nil
}

// Snapshot loads the rows for refs, deleted ones included, as an immutable
// pricing snapshot. Missing ids are simply absent from it.
func (s *Service) Snapshot(ctx context.Context, refs []uint) (pricing.Snapshot, error) {
	if len(refs) == 0 {
		return pricing.NewSnapshot(), nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []models.Material
	q := Filter{IncludeDeleted: true}.apply(s.db.WithContext(ctx))
	if err := q.Where("id IN ?", refs).Find(&rows).Error; err != nil {
		return pricing.Snapshot{}, fmt.Errorf("load catalog snapshot: %w", err)
	}
	return pricing.NewSnapshot(rows...), nil
}

// LockForComposition share-locks the live materials in ids inside tx and
// returns them by id. Ids that are missing or deleted are absent from the map.
func LockForComposition(tx *gorm.DB, ids []uint) (map[uint]models.Material, error) {
	out := make(map[uint]models.Material, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	var rows []models.Material
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id IN ?", sorted).
		Where("is_deleted = ?", false).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lock materials: %w", err)
	}
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}

func lockLive(tx *gorm.DB, id uint) (*models.Material, error) {
	var m models.Material
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("is_deleted = ?", false).
		First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "material", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("lock material %d: %w", id, err)
	}
	return &m, nil
}

// checkUnique enforces code and name uniqueness among live materials of a kind.
func checkUnique(tx *gorm.DB, m *models.Material) error {
	checks := []struct {
		field  string
		column string
		value  string
		shown  string
	}{
		{"code", "code", m.Code, m.Code},
		{"name", "LOWER(name)", strings.ToLower(m.Name), m.Name},
	}

	for _, c := range checks {
		q := tx.Model(&models.Material{}).
			Where("kind = ? AND is_deleted = ?", m.Kind, false).
			Where(c.column+" = ?", c.value)
		if m.ID != 0 {
			q = q.Where("id <> ?", m.ID)
		}

		var n int64
		if err := q.Count(&n).Error; err != nil {
			return fmt.Errorf("check %s uniqueness: %w", c.field, err)
		}
		if n > 0 {
			return &apperr.DuplicateCodeError{Kind: string(m.Kind), Field: c.field, Value: c.shown}
		}
	}
	return nil
}

// translateWriteError turns a unique index violation that slipped past
// checkUnique (a concurrent write) into the domain error. It runs after the
// failed transaction has rolled back and re-checks which field collides.
func (s *Service) translateWriteError(ctx context.Context, err error, m *models.Material) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	var dup *apperr.DuplicateCodeError
	if errors.As(checkUnique(s.db.WithContext(ctx), m), &dup) {
		return dup
	}
	return &apperr.DuplicateCodeError{Kind: string(m.Kind), Field: "code", Value: m.Code}
}

func newEntry(m *models.Material, index int, v models.MaterialVariant, oldPrice, newPrice decimal.Decimal, at time.Time, actor models.Actor) models.PriceHistoryEntry {
	return models.PriceHistoryEntry{
		EntityType:   string(m.Kind),
		EntityID:     m.ID,
		VariantID:    v.ID,
		VariantIndex: index,
		VariantName:  v.Name,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		ChangedAt:    at,
		ChangedByID:  actor.ID,
		ChangedBy:    actor.Name,
	}
}
