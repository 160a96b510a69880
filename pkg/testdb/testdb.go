// Package testdb opens throwaway sqlite databases migrated with the service schema.
package testdb

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lesson-worker/entities"
	"testing"
)

// Open returns an in-memory database limited to one connection, so every
// handle sees the same schema. It is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(entities.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
