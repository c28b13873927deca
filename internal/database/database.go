package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/klear-accumulate/internal/database/migrations"
)

// MemoryDSN is a private in-memory database
const MemoryDSN = "file::memory:"

// NewDatabase opens the sqlite database at dsn and migrates the venue schema
func NewDatabase(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; an in-memory database also lives and dies
	// with its one connection
	sqlDB.SetMaxOpenConns(1)

	if err := migrations.AddOrderBook(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.AddIdempotency(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
