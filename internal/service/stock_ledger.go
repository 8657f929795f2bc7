package service

import (
	"context"
	"time"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/repository"
	"go-storefront-ledger/pkg/validator"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type MutationKind string

const (
	MutationAdd    MutationKind = "add"
	MutationRemove MutationKind = "remove"
	MutationSet    MutationKind = "set"
)

// Mutation describes one stock change. OrderID marks a removal as a sale.
type Mutation struct {
	Kind      MutationKind
	ProductID uuid.UUID
	Quantity  int
	Reason    string
	OrderID   *uuid.UUID
	Actor     string
}

func (m Mutation) validate() error {
	if m.ProductID == uuid.Nil {
		return validationError("product id is required")
	}
	switch m.Kind {
	case MutationAdd, MutationRemove:
		if m.Quantity <= 0 {
			return validationError("quantity must be greater than zero")
		}
	case MutationSet:
		if m.Quantity < 0 {
			return validationError("quantity must not be negative")
		}
	default:
		return validationError("unknown mutation %q", m.Kind)
	}
	return nil
}

// LedgerEntry is the committed result of a mutation. Clamped is set when a
// removal asked for more than was on hand; the entry still committed.
type LedgerEntry struct {
	Transaction model.StockTransaction `json:"transaction"`
	Product     model.Product          `json:"product"`
	Requested   int                    `json:"requested"`
	Clamped     bool                   `json:"clamped"`
}

type StockLedger interface {
	RegisterProduct(ctx context.Context, p *model.Product, actor string) (*model.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]model.Product, error)

	AddStock(ctx context.Context, productID uuid.UUID, quantity int, reason, actor string) (*LedgerEntry, error)
	RemoveStock(ctx context.Context, productID uuid.UUID, quantity int, reason string, orderID *uuid.UUID, actor string) (*LedgerEntry, error)
	SetStock(ctx context.Context, productID uuid.UUID, quantity int, reason, actor string) (*LedgerEntry, error)
	// GetHistory returns the product's entries newest first.
	GetHistory(ctx context.Context, productID uuid.UUID) ([]model.StockTransaction, error)

	// Apply runs a mutation inside a caller's transaction body. The caller
	// publishes the returned entry once its transaction has committed.
	Apply(tx repository.Tx, m Mutation) (*LedgerEntry, error)
}

type stockLedger struct {
	store  repository.Store
	events *Events
	now    func() time.Time
}

func NewStockLedger(store repository.Store, events *Events) StockLedger {
	return &stockLedger{store: store, events: events, now: time.Now}
}

// RegisterProduct creates a catalogue entry. Opening stock is booked as an
// addition so the product's history starts from zero.
func (l *stockLedger) RegisterProduct(ctx context.Context, p *model.Product, actor string) (*model.Product, error) {
	if errs := validator.ValidateStruct(p); len(errs) > 0 {
		return nil, validationError("%s", validator.Describe(errs))
	}
	if p.TenantID == "" {
		return nil, validationError("tenant is required")
	}
	if p.Price.IsNegative() {
		return nil, validationError("price must not be negative")
	}

	opening := p.StockQuantity
	var created model.Product
	var entry *LedgerEntry
	err := l.store.RunTransaction(ctx, func(tx repository.Tx) error {
		entry = nil
		created = *p
		created.ID = uuid.New()
		if created.TrackStock {
			created.StockQuantity = 0
		}
		created.StockStatus = Classify(created.StockQuantity, created.MinStockLevel, created.AllowBackorders)
		created.Version = 0
		created.CreatedBy = actor
		created.UpdatedBy = actor
		if err := tx.CreateProduct(&created); err != nil {
			return err
		}
		if opening > 0 && created.TrackStock {
			e, err := l.Apply(tx, Mutation{
				Kind:      MutationAdd,
				ProductID: created.ID,
				Quantity:  opening,
				Reason:    "initial stock",
				Actor:     actor,
			})
			if err != nil {
				return err
			}
			entry = e
			created = e.Product
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, validationError("SKU %s already exists", p.SKU)
	}
	if err != nil {
		return nil, err
	}

	if entry != nil {
		l.events.stockChanged(entry)
	}
	zap.L().Info("product registered",
		zap.String("tenant", created.TenantID),
		zap.String("sku", created.SKU),
		zap.Int("opening_stock", created.StockQuantity),
	)
	return &created, nil
}

func (l *stockLedger) GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	return l.store.FindProduct(ctx, productID)
}

func (l *stockLedger) ListProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	return l.store.ListProducts(ctx, tenantID)
}

func (l *stockLedger) AddStock(ctx context.Context, productID uuid.UUID, quantity int, reason, actor string) (*LedgerEntry, error) {
	return l.mutate(ctx, Mutation{Kind: MutationAdd, ProductID: productID, Quantity: quantity, Reason: reason, Actor: actor})
}

func (l *stockLedger) RemoveStock(ctx context.Context, productID uuid.UUID, quantity int, reason string, orderID *uuid.UUID, actor string) (*LedgerEntry, error) {
	return l.mutate(ctx, Mutation{Kind: MutationRemove, ProductID: productID, Quantity: quantity, Reason: reason, OrderID: orderID, Actor: actor})
}

func (l *stockLedger) SetStock(ctx context.Context, productID uuid.UUID, quantity int, reason, actor string) (*LedgerEntry, error) {
	return l.mutate(ctx, Mutation{Kind: MutationSet, ProductID: productID, Quantity: quantity, Reason: reason, Actor: actor})
}

func (l *stockLedger) mutate(ctx context.Context, m Mutation) (*LedgerEntry, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	var entry *LedgerEntry
	err := l.store.RunTransaction(ctx, func(tx repository.Tx) error {
		e, err := l.Apply(tx, m)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	warnClamped(entry)
	l.events.stockChanged(entry)
	return entry, nil
}

func (l *stockLedger) Apply(tx repository.Tx, m Mutation) (*LedgerEntry, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	p, err := tx.GetProduct(m.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.TrackStock {
		return nil, errors.Wrapf(ErrStockNotTracked, "product %s", p.SKU)
	}

	previous := p.StockQuantity
	next := previous
	var typ model.StockTransactionType
	clamped := false

	switch m.Kind {
	case MutationAdd:
		next = previous + m.Quantity
		typ = model.TxAddition
	case MutationRemove:
		next = previous - m.Quantity
		if next < 0 {
			next = 0
			clamped = true
		}
		typ = model.TxSubtraction
		if m.OrderID != nil {
			typ = model.TxSold
		}
	case MutationSet:
		next = m.Quantity
		typ = model.TxAdjustment
	}

	p.StockQuantity = next
	p.StockStatus = Classify(next, p.MinStockLevel, p.AllowBackorders)
	p.UpdatedBy = m.Actor
	if err := tx.UpdateProduct(p); err != nil {
		return nil, err
	}

	st := model.StockTransaction{
		ProductID:     p.ID,
		TenantID:      p.TenantID,
		Type:          typ,
		Quantity:      abs(next - previous),
		PreviousStock: previous,
		NewStock:      next,
		Reason:        m.Reason,
		OrderID:       m.OrderID,
		Sequence:      p.Version,
		Timestamp:     l.now(),
		CreatedBy:     m.Actor,
	}
	if err := tx.AppendStockTransaction(&st); err != nil {
		return nil, err
	}

	return &LedgerEntry{Transaction: st, Product: *p, Requested: m.Quantity, Clamped: clamped}, nil
}

func (l *stockLedger) GetHistory(ctx context.Context, productID uuid.UUID) ([]model.StockTransaction, error) {
	if _, err := l.store.FindProduct(ctx, productID); err != nil {
		return nil, err
	}
	return l.store.ListStockTransactions(ctx, productID)
}

// warnClamped reports committed removals that asked for more than was on hand.
func warnClamped(entries ...*LedgerEntry) {
	for _, e := range entries {
		if !e.Clamped {
			continue
		}
		zap.L().Warn("stock removal clamped at zero",
			zap.String("product", e.Product.ID.String()),
			zap.String("sku", e.Product.SKU),
			zap.Int("on_hand", e.Transaction.PreviousStock),
			zap.Int("requested", e.Requested),
		)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
