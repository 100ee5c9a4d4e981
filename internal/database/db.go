package database

import (
	"fmt"
	"time"

	"jewelry-backend/internal/config"
	"jewelry-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Open connects to Postgres and tunes the pool from cfg.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the catalog tables and the partial indexes AutoMigrate
// cannot express. Safe to run on every start.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Material{},
		&models.Product{},
		&models.CompositionLine{},
		&models.PriceHistoryEntry{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// Codes and case-folded names are unique among live materials of a kind;
	// deleted rows keep theirs.
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_materials_kind_code_live ON materials (kind, code) WHERE is_deleted = false`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_materials_kind_name_live ON materials (kind, LOWER(name)) WHERE is_deleted = false`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_entity_changed ON price_history (entity_id, changed_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_composition_lines_product_position ON composition_lines (product_id, position)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}
