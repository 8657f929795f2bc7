package repository

import (
	"context"
	"time"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
)

func (s *gormStore) FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, translateError("find product", err)
	}
	return &product, nil
}

func (s *gormStore) ListProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, translateError("list products", err)
	}
	return products, nil
}

func (t *gormTx) GetProduct(id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := t.db.First(&product, "id = ?", id).Error; err != nil {
		return nil, translateError("get product", err)
	}
	return &product, nil
}

func (t *gormTx) CreateProduct(p *model.Product) error {
	return translateError("create product", t.db.Create(p).Error)
}

// UpdateProduct hanya menulis kolom stok; field katalog lain bukan urusan ledger.
func (t *gormTx) UpdateProduct(p *model.Product) error {
	res := t.db.Model(&model.Product{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"stock_quantity": p.StockQuantity,
			"stock_status":   p.StockStatus,
			"version":        p.Version + 1,
			"updated_by":     p.UpdatedBy,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return translateError("update product", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	p.Version++
	return nil
}
