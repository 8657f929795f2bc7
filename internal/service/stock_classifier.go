package service

import "go-storefront-ledger/internal/model"

// Classify derives the stock status label. Backorders do not change the
// label of an empty product, only whether it can still be sold.
func Classify(quantity, minLevel int, allowBackorders bool) model.StockStatus {
	switch {
	case quantity <= 0:
		return model.StockOutOfStock
	case minLevel > 0 && quantity <= minLevel:
		return model.StockLowStock
	default:
		return model.StockInStock
	}
}

// IsAvailable reports whether requested units of p can be ordered.
func IsAvailable(p *model.Product, requested int) bool {
	if !p.TrackStock {
		return true
	}
	if p.StockQuantity >= requested {
		return true
	}
	return p.StockQuantity == 0 && p.AllowBackorders
}
