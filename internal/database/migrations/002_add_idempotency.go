package migrations

import (
	"gorm.io/gorm"

	"github.com/ksred/klear-accumulate/internal/paper"
)

// AddIdempotency creates the idempotency record table
func AddIdempotency(db *gorm.DB) error {
	if err := db.AutoMigrate(&paper.IdempotencyRecord{}); err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires_at
		ON idempotency_records(expires_at)`).Error
}
