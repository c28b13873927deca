package migrations

import (
	"gorm.io/gorm"

	"github.com/ksred/klear-accumulate/internal/paper"
)

// AddOrderBook creates the stock, order and fill tables and their indexes
func AddOrderBook(db *gorm.DB) error {
	if err := db.AutoMigrate(&paper.Stock{}, &paper.Order{}, &paper.Fill{}); err != nil {
		return err
	}

	indexes := []string{
		// Open order scan for the matching pass
		`CREATE INDEX IF NOT EXISTS idx_orders_open_book
		 ON orders(venue, symbol, open)`,

		// Fills by time, for audit queries
		`CREATE INDEX IF NOT EXISTS idx_fills_filled_at
		 ON fills(filled_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
