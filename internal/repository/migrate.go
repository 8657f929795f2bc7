package repository

import (
	"go-storefront-ledger/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const soldOnceIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uq_stock_tx_sold_once
	ON stock_transactions (order_id, product_id) WHERE type = 'sold'`

// Migrate creates the tables plus the partial unique index that backs the
// one-sale-per-order rule at the database level.
func Migrate(db *gorm.DB) error {
	if err := db.Migrator().AutoMigrate(model.Tables...); err != nil {
		zap.S().Errorf("auto migrate failed: %v", err)
		return err
	}
	if err := db.Exec(soldOnceIndex).Error; err != nil {
		zap.S().Errorf("create sold index failed: %v", err)
		return err
	}
	return nil
}
