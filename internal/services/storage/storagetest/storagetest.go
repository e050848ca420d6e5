// Package storagetest opens isolated in-memory stores for tests.
package storagetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lbot-tgbot-go/internal/services/storage"
	"github.com/lbot-tgbot-go/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// New returns a migrated SQLStore backed by a private in-memory SQLite
// database. The store is closed when the test ends.
func New(tb testing.TB) *storage.SQLStore {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("test db handle: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	store, err := storage.NewSQLStore(db, logger.Discard())
	if err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() { store.Close() })
	return store
}
