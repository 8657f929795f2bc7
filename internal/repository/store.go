package repository

import (
	"context"
	"time"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is permanent and never retried.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a concurrent writer committed first; RunTransaction retries on it.
	ErrConflict = errors.New("write conflict")
	// ErrStoreUnavailable is transient: the caller may retry the whole operation.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDuplicate        = errors.New("record already exists")
)

// Tx is the unit of work handed to a RunTransaction body. Writes are
// compare-and-swap on the Version the caller read; the body may be executed
// more than once and must derive everything from what it reads through tx.
type Tx interface {
	GetProduct(id uuid.UUID) (*model.Product, error)
	CreateProduct(p *model.Product) error
	// UpdateProduct persists quantity, status and audit fields when the stored
	// version still equals p.Version, then advances p.Version.
	UpdateProduct(p *model.Product) error
	AppendStockTransaction(t *model.StockTransaction) error

	GetOrder(id uuid.UUID) (*model.Order, error)
	CreateOrder(o *model.Order) error
	// UpdateOrder persists the mutable order fields with the same CAS rule as UpdateProduct.
	UpdateOrder(o *model.Order) error
}

// Store is the persistent store consumed by the ledger and the order lifecycle.
type Store interface {
	// RunTransaction executes fn atomically, retrying it on write conflicts
	// with bounded backoff. Exhausted retries return ErrStoreUnavailable.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]model.Product, error)
	// ListStockTransactions returns a product's history, newest first.
	ListStockTransactions(ctx context.Context, productID uuid.UUID) ([]model.StockTransaction, error)

	FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// ListAwaitingPayment returns payment_pending orders whose payment was
	// requested before the cutoff, oldest first.
	ListAwaitingPayment(ctx context.Context, requestedBefore time.Time, limit int) ([]model.Order, error)
}
