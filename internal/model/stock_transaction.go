package model

import (
	"time"

	"github.com/google/uuid"
)

type StockTransactionType string

const (
	TxAddition    StockTransactionType = "addition"
	TxSubtraction StockTransactionType = "subtraction"
	TxAdjustment  StockTransactionType = "adjustment"
	TxSold        StockTransactionType = "sold"
)

// StockTransaction is one immutable ledger entry. Rows are inserted in the
// same database transaction as the product write and never updated.
type StockTransaction struct {
	ID            uuid.UUID            `gorm:"type:uuid;primary_key;" json:"id"`
	ProductID     uuid.UUID            `gorm:"type:uuid;not null;index:idx_stock_tx_product_seq,priority:1" json:"product_id"`
	TenantID      string               `gorm:"type:varchar(255);not null;index" json:"tenant_id"`
	Type          StockTransactionType `gorm:"type:varchar(20);not null" json:"type"`
	Quantity      int                  `gorm:"not null" json:"quantity"`
	PreviousStock int                  `gorm:"not null" json:"previous_stock"`
	NewStock      int                  `gorm:"not null" json:"new_stock"`
	Reason        string               `gorm:"type:text" json:"reason,omitempty"`
	OrderID       *uuid.UUID           `gorm:"type:uuid;index" json:"order_id,omitempty"`
	// Sequence is the product version this entry produced; it orders the chain.
	Sequence  int64     `gorm:"not null;index:idx_stock_tx_product_seq,priority:2" json:"sequence"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	CreatedBy string    `json:"created_by"`
}

// Delta is the signed change this entry applied.
func (t *StockTransaction) Delta() int {
	return t.NewStock - t.PreviousStock
}
