package paper

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateOrderWithIdempotency creates a new order and its idempotency record in a transaction
func (d *Database) CreateOrderWithIdempotency(order *Order, idempotencyKey string, ttl time.Duration) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     order.OrderID,
		ResourceType:   "order",
		ExpiresAt:      time.Now().Add(ttl),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord returns nil when the key has not been seen
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetOrder returns nil when no order has the id
func (d *Database) GetOrder(orderID int64) (*Order, error) {
	var order Order
	if err := d.db.Preload("Fills").Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) OpenOrders(venue, symbol string) ([]Order, error) {
	var orders []Order
	err := d.db.Preload("Fills").
		Where("venue = ? AND symbol = ? AND open = ?", venue, symbol, true).
		Order("id").
		Find(&orders).Error
	return orders, err
}

func (d *Database) UpdateOrder(order *Order) error {
	return d.db.Omit(clause.Associations).Save(order).Error
}

// ApplyFill records an execution and the order and book it changed in one transaction
func (d *Database) ApplyFill(order *Order, fill *Fill, stock *Stock) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fill).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(order).Error; err != nil {
			return err
		}
		return tx.Save(stock).Error
	})
}

// GetStock returns nil when the venue does not list the symbol
func (d *Database) GetStock(venue, symbol string) (*Stock, error) {
	var stock Stock
	if err := d.db.Where("venue = ? AND symbol = ?", venue, symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

func (d *Database) VenueExists(venue string) (bool, error) {
	var count int64
	err := d.db.Model(&Stock{}).Where("venue = ?", venue).Count(&count).Error
	return count > 0, err
}

func (d *Database) Stocks() ([]Stock, error) {
	var stocks []Stock
	err := d.db.Order("id").Find(&stocks).Error
	return stocks, err
}

func (d *Database) SaveStock(stock *Stock) error {
	return d.db.Save(stock).Error
}
