package audit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/models"

	"gorm.io/gorm"
)

const DefaultPageSize = 100

// Log is the append-only price ledger. It exposes no update or delete.
type Log struct {
	db       *gorm.DB
	pageSize int
	timeout  time.Duration
}

// NewLog returns a ledger whose own reads and writes each run under timeout.
// Zero means no deadline beyond the caller's.
func NewLog(db *gorm.DB, timeout time.Duration) *Log {
	return &Log{db: db, pageSize: DefaultPageSize, timeout: timeout}
}

func (l *Log) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Append inserts entry inside tx, the transaction that wrote the price.
// A nil tx writes outside any transaction.
func (l *Log) Append(ctx context.Context, tx *gorm.DB, entry *models.PriceHistoryEntry) error {
	if tx == nil {
		tx = l.db
	}
	if entry.ID != 0 {
		return errors.New("price history entries are immutable")
	}
	if entry.EntityID == 0 || entry.EntityType == "" {
		return errors.New("price history entry needs an entity")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now()
	}
	entry.ChangedAt = entry.ChangedAt.UTC()

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

func (l *Log) Get(ctx context.Context, id uint) (*models.PriceHistoryEntry, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var e models.PriceHistoryEntry
	err := l.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "price history entry", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get price history entry %d: %w", id, err)
	}
	return &e, nil
}

type Filter struct {
	EntityType string
	EntityID   uint
	PageSize   int
}

// Query walks matching entries newest first. The sequence is lazy (one page
// per round-trip, keyset paged on changed_at/id), finite, and restartable:
// every range starts a fresh walk from the newest entry.
func (l *Log) Query(ctx context.Context, f Filter) iter.Seq2[models.PriceHistoryEntry, error] {
	size := f.PageSize
	if size <= 0 {
		size = l.pageSize
	}

	return func(yield func(models.PriceHistoryEntry, error) bool) {
		var cursor *models.PriceHistoryEntry
		for {
			q := l.db.Model(&models.PriceHistoryEntry{})
			if f.EntityType != "" {
				q = q.Where("entity_type = ?", f.EntityType)
			}
			if f.EntityID != 0 {
				q = q.Where("entity_id = ?", f.EntityID)
			}
			if cursor != nil {
				q = q.Where("changed_at < ? OR (changed_at = ? AND id < ?)", cursor.ChangedAt, cursor.ChangedAt, cursor.ID)
			}

			page, err := l.page(ctx, q, size)
			if err != nil {
				yield(models.PriceHistoryEntry{}, err)
				return
			}

			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
			cursor = &page[len(page)-1]
		}
	}
}

// page runs one keyset round-trip under its own deadline.
func (l *Log) page(ctx context.Context, q *gorm.DB, size int) ([]models.PriceHistoryEntry, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var page []models.PriceHistoryEntry
	if err := q.WithContext(ctx).Order("changed_at DESC").Order("id DESC").Limit(size).Find(&page).Error; err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	return page, nil
}

// List drains Query into a slice of at most limit entries (0 = no limit).
func (l *Log) List(ctx context.Context, f Filter, limit int) ([]models.PriceHistoryEntry, error) {
	if limit > 0 && (f.PageSize <= 0 || f.PageSize > limit) {
		f.PageSize = limit
	}

	out := make([]models.PriceHistoryEntry, 0)
	for e, err := range l.Query(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
