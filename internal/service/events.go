package service

import (
	"time"

	"go-storefront-ledger/internal/model"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

const (
	TopicStockChanged = "stock.changed"
	TopicOrderChanged = "order.changed"
)

// StockChanged is published once per committed ledger entry.
type StockChanged struct {
	TenantID      string                     `json:"tenant_id"`
	ProductID     uuid.UUID                  `json:"product_id"`
	SKU           string                     `json:"sku"`
	Name          string                     `json:"name"`
	Type          model.StockTransactionType `json:"type"`
	Quantity      int                        `json:"quantity"`
	PreviousStock int                        `json:"previous_stock"`
	NewStock      int                        `json:"new_stock"`
	Status        model.StockStatus          `json:"stock_status"`
	OrderID       *uuid.UUID                 `json:"order_id,omitempty"`
	Actor         string                     `json:"actor,omitempty"`
	At            time.Time                  `json:"at"`
}

// OrderChanged is published after every committed order transition.
type OrderChanged struct {
	TenantID      string              `json:"tenant_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Stage         model.OrderStage    `json:"stage"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Total         string              `json:"total"`
	At            time.Time           `json:"at"`
}

// Events publishes domain events on the in-process bus. Publishing happens
// after commit only; a nil *Events drops everything.
type Events struct {
	bus EventBus.Bus
}

func NewEvents(bus EventBus.Bus) *Events {
	return &Events{bus: bus}
}

func (e *Events) stockChanged(entries ...*LedgerEntry) {
	if e == nil || e.bus == nil {
		return
	}
	for _, entry := range entries {
		st := entry.Transaction
		e.bus.Publish(TopicStockChanged, StockChanged{
			TenantID:      entry.Product.TenantID,
			ProductID:     entry.Product.ID,
			SKU:           entry.Product.SKU,
			Name:          entry.Product.Name,
			Type:          st.Type,
			Quantity:      st.Quantity,
			PreviousStock: st.PreviousStock,
			NewStock:      st.NewStock,
			Status:        entry.Product.StockStatus,
			OrderID:       st.OrderID,
			Actor:         st.CreatedBy,
			At:            st.Timestamp,
		})
	}
}

func (e *Events) orderChanged(o *model.Order) {
	if e == nil || e.bus == nil || o == nil {
		return
	}
	e.bus.Publish(TopicOrderChanged, OrderChanged{
		TenantID:      o.TenantID,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Stage:         o.Stage,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total.StringFixed(2),
		At:            time.Now(),
	})
}
