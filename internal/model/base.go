package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel handles ID (UUID) and standard Audit Trails
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Audit User Tracking
	CreatedBy string `json:"created_by"`
	UpdatedBy string `json:"updated_by"`
}

// Hook Before Create untuk generate UUID otomatis. Keeps an ID the caller already assigned.
func (base *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	base.EnsureID()
	return
}

// EnsureID assigns a fresh UUID when none is set yet.
func (base *BaseModel) EnsureID() {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
}

// Tables lists every persisted model, in migration order.
var Tables = []interface{}{
	&Product{},
	&StockTransaction{},
	&Order{},
	&OrderItem{},
}
