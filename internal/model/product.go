package model

import "github.com/shopspring/decimal"

// StockStatus is derived from quantity and thresholds on every ledger mutation.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

type Product struct {
	BaseModel
	TenantID string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_sku,priority:1" json:"tenant_id"`
	SKU      string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_products_tenant_sku,priority:2" json:"sku" validate:"required"`
	Name     string          `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Category string          `gorm:"type:varchar(100)" json:"category"`
	Price    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"price"`

	// Stock fields. Only the ledger writes StockQuantity and StockStatus.
	StockQuantity   int         `gorm:"not null;default:0" json:"stock_quantity" validate:"gte=0"`
	MinStockLevel   int         `gorm:"not null;default:0" json:"min_stock_level" validate:"gte=0"`
	MaxStockLevel   int         `gorm:"not null;default:0" json:"max_stock_level" validate:"gte=0"`
	AllowBackorders bool        `gorm:"not null;default:false" json:"allow_backorders"`
	TrackStock      bool        `gorm:"not null" json:"track_stock"`
	StockStatus     StockStatus `gorm:"type:varchar(20);not null;default:'out_of_stock'" json:"stock_status"`

	// Version is bumped by every committed write; writers compare-and-swap on it.
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// StockValue is quantity times unit price.
func (p *Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.StockQuantity)))
}
