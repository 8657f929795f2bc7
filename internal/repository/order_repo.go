package repository

import (
	"context"
	"time"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (s *gormStore) FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := preloadItems(s.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		return nil, translateError("find order", err)
	}
	return &order, nil
}

func (s *gormStore) ListAwaitingPayment(ctx context.Context, requestedBefore time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := preloadItems(s.db.WithContext(ctx)).
		Where("stage = ? AND payment_requested_at < ?", model.StagePaymentPending, requestedBefore).
		Order("payment_requested_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, translateError("list awaiting payment", err)
	}
	return orders, nil
}

func (t *gormTx) GetOrder(id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := preloadItems(t.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, translateError("get order", err)
	}
	return &order, nil
}

// CreateOrder inserts the order and its items in one go.
func (t *gormTx) CreateOrder(o *model.Order) error {
	return translateError("create order", t.db.Create(o).Error)
}

func (t *gormTx) UpdateOrder(o *model.Order) error {
	res := t.db.Model(&model.Order{}).
		Where("id = ? AND version = ?", o.ID, o.Version).
		Updates(map[string]interface{}{
			"status":               o.Status,
			"stage":                o.Stage,
			"payment_method":       o.PaymentMethod,
			"payment_status":       o.PaymentStatus,
			"payment_reference":    o.PaymentReference,
			"payment_message":      o.PaymentMessage,
			"cancel_reason":        o.CancelReason,
			"stock_decremented":    o.StockDecremented,
			"payment_requested_at": o.PaymentRequestedAt,
			"paid_at":              o.PaidAt,
			"version":              o.Version + 1,
			"updated_by":           o.UpdatedBy,
			"updated_at":           time.Now(),
		})
	if res.Error != nil {
		return translateError("update order", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	o.Version++
	return nil
}
