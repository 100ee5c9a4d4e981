// Package testutil opens throwaway sqlite databases for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"jewelry-backend/internal/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// DB returns a migrated in-memory database private to the calling test.
// A single connection keeps sqlite's in-memory state shared and serializes
// transactions the way row locks would on Postgres.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// TrackDeadlines records, for every query and insert run on db from now on,
// whether its context carried a deadline.
func TrackDeadlines(tb testing.TB, db *gorm.DB) func() []bool {
	tb.Helper()

	var (
		mu   sync.Mutex
		seen []bool
	)
	record := func(tx *gorm.DB) {
		_, ok := tx.Statement.Context.Deadline()
		mu.Lock()
		seen = append(seen, ok)
		mu.Unlock()
	}
	if err := db.Callback().Query().Before("gorm:query").Register("testutil:deadline_query", record); err != nil {
		tb.Fatalf("register query callback: %v", err)
	}
	if err := db.Callback().Create().Before("gorm:create").Register("testutil:deadline_create", record); err != nil {
		tb.Fatalf("register create callback: %v", err)
	}

	return func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), seen...)
	}
}
