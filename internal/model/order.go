package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStage is the lifecycle state driving payment handling.
type OrderStage string

const (
	StageCreated          OrderStage = "created"
	StagePaymentPending   OrderStage = "payment_pending"
	StagePaymentCompleted OrderStage = "payment_completed"
	StagePaymentFailed    OrderStage = "payment_failed"
	StageCancelled        OrderStage = "cancelled"
)

type PaymentMethod string

const (
	PaymentMpesa PaymentMethod = "mpesa"
	PaymentCash  PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "unpaid"
	PaymentPending             PaymentStatus = "pending"
	PaymentPendingConfirmation PaymentStatus = "pending_confirmation"
	PaymentPaid                PaymentStatus = "paid"
	PaymentCODPending          PaymentStatus = "cod_pending"
	PaymentFailed              PaymentStatus = "failed"
)

// CustomerInfo is embedded into the orders table with a customer_ prefix.
type CustomerInfo struct {
	Name    string `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Phone   string `gorm:"type:varchar(20);not null" json:"phone" validate:"required,phone"`
	Email   string `gorm:"type:varchar(255)" json:"email,omitempty" validate:"omitempty,email"`
	Address string `gorm:"type:text" json:"address,omitempty"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Position  int             `gorm:"not null" json:"position"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}

// LineTotal is price times quantity.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	BaseModel
	TenantID    string          `gorm:"type:varchar(255);not null;index" json:"tenant_id"`
	OrderNumber string          `gorm:"type:varchar(32);uniqueIndex" json:"order_number"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	DeliveryFee decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"delivery_fee"`
	Total       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total"`
	Customer    CustomerInfo    `gorm:"embedded;embeddedPrefix:customer_" json:"customer"`

	Status           OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Stage            OrderStage    `gorm:"type:varchar(30);not null;index" json:"stage"`
	PaymentMethod    PaymentMethod `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaymentStatus    PaymentStatus `gorm:"type:varchar(30);not null;index" json:"payment_status"`
	PaymentReference string        `gorm:"type:varchar(100);index" json:"payment_reference,omitempty"`
	PaymentMessage   string        `gorm:"type:text" json:"payment_message,omitempty"`
	CancelReason     string        `gorm:"type:text" json:"cancel_reason,omitempty"`

	// StockDecremented flips once, in the transaction that records the sale.
	StockDecremented bool `gorm:"not null;default:false" json:"stock_decremented"`

	PaymentRequestedAt *time.Time `json:"payment_requested_at,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	Version            int64      `gorm:"not null;default:0" json:"version"`
}

// RecalculateTotals derives Subtotal and Total from the items and delivery fee.
func (o *Order) RecalculateTotals() {
	subtotal := decimal.Zero
	for i := range o.Items {
		subtotal = subtotal.Add(o.Items[i].LineTotal())
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Add(o.DeliveryFee)
}

// AmountMinorUnits is the total in cents, as the gateway expects it.
func (o *Order) AmountMinorUnits() int64 {
	return o.Total.Shift(2).Round(0).IntPart()
}

// IsTerminal reports whether no further payment transition is expected.
func (o *Order) IsTerminal() bool {
	return o.Stage == StageCancelled || (o.Stage == StagePaymentCompleted && o.PaymentStatus == PaymentPaid)
}
