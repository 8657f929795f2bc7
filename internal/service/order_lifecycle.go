package service

import (
	"context"
	"time"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/repository"
	"go-storefront-ledger/pkg/validator"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Actors recorded on order and ledger writes that no logged-in user made.
const (
	ActorStorefront = "storefront"
	ActorGateway    = "gateway"
	ActorSweeper    = "sweeper"
)

type OrderItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"uuid_required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type CreateOrderInput struct {
	TenantID    string             `json:"tenant_id" validate:"required"`
	Customer    model.CustomerInfo `json:"customer"`
	Items       []OrderItemInput   `json:"items" validate:"required,min=1,dive"`
	DeliveryFee decimal.Decimal    `json:"delivery_fee"`
}

type SelectPaymentInput struct {
	Method model.PaymentMethod `json:"method" validate:"required,oneof=mpesa cash"`
	// Phone overrides the customer's phone for the push request.
	Phone string `json:"phone" validate:"omitempty,phone"`
}

// PaymentOutcome is what the storefront shows after choosing a payment method.
type PaymentOutcome struct {
	Order                   *model.Order `json:"order"`
	Instructions            string       `json:"instructions,omitempty"`
	Message                 string       `json:"message,omitempty"`
	NeedsManualConfirmation bool         `json:"needs_manual_confirmation"`
}

const manualConfirmationPrompt = "We have not heard back from M-Pesa yet. Did you complete the payment on your phone?"

type OrderLifecycle interface {
	Create(ctx context.Context, in CreateOrderInput) (*model.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	SelectPayment(ctx context.Context, orderID uuid.UUID, in SelectPaymentInput) (*PaymentOutcome, error)
	ConfirmManually(ctx context.Context, orderID uuid.UUID, paid bool) (*model.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error)
	MarkCashCollected(ctx context.Context, orderID uuid.UUID, actor string) (*model.Order, error)
	// ApplySettlement records a gateway verdict. Silent settlements change nothing.
	ApplySettlement(ctx context.Context, orderID uuid.UUID, s Settlement) (*model.Order, error)
	// Expire fails an order still waiting for payment.
	Expire(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error)
}

type orderLifecycle struct {
	store      repository.Store
	ledger     StockLedger
	reconciler PaymentReconciler
	numbers    *OrderNumbers
	events     *Events
	now        func() time.Time
}

func NewOrderLifecycle(store repository.Store, ledger StockLedger, reconciler PaymentReconciler, numbers *OrderNumbers, events *Events) OrderLifecycle {
	return &orderLifecycle{
		store:      store,
		ledger:     ledger,
		reconciler: reconciler,
		numbers:    numbers,
		events:     events,
		now:        time.Now,
	}
}

func (l *orderLifecycle) Create(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		return nil, validationError("%s", validator.Describe(errs))
	}
	if in.DeliveryFee.IsNegative() {
		return nil, validationError("delivery fee must not be negative")
	}
	lines := mergeLines(in.Items)

	orderID := uuid.New()
	number := l.numbers.Next()
	var created *model.Order
	err := l.store.RunTransaction(ctx, func(tx repository.Tx) error {
		items := make([]model.OrderItem, 0, len(lines))
		for i, line := range lines {
			p, err := tx.GetProduct(line.ProductID)
			if errors.Is(err, repository.ErrNotFound) || (err == nil && p.TenantID != in.TenantID) {
				return errors.Wrapf(ErrNotFound, "product %s", line.ProductID)
			}
			if err != nil {
				return err
			}
			if !IsAvailable(p, line.Quantity) {
				return errors.Wrapf(ErrInsufficientStock, "%s has %d left", p.Name, p.StockQuantity)
			}
			items = append(items, model.OrderItem{
				Position:  i,
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  line.Quantity,
				Price:     p.Price,
			})
		}

		o := &model.Order{
			TenantID:      in.TenantID,
			OrderNumber:   number,
			Items:         items,
			DeliveryFee:   in.DeliveryFee,
			Customer:      in.Customer,
			Status:        model.OrderPending,
			Stage:         model.StageCreated,
			PaymentStatus: model.PaymentUnpaid,
		}
		o.ID = orderID
		o.CreatedBy = ActorStorefront
		o.UpdatedBy = ActorStorefront
		o.RecalculateTotals()
		if err := tx.CreateOrder(o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("order created",
		zap.String("order", created.ID.String()),
		zap.String("number", created.OrderNumber),
		zap.String("total", created.Total.StringFixed(2)),
	)
	l.events.orderChanged(created)
	return created, nil
}

// mergeLines folds repeated products into one line so each product is sold
// at most once per order.
func mergeLines(items []OrderItemInput) []OrderItemInput {
	merged := make([]OrderItemInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

func (l *orderLifecycle) Get(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return l.store.FindOrder(ctx, orderID)
}

func canSelectPayment(o *model.Order) error {
	switch {
	case o.Stage == model.StageCreated, o.Stage == model.StagePaymentFailed:
		return nil
	case o.Stage == model.StagePaymentPending && o.PaymentStatus == model.PaymentPendingConfirmation:
		return nil
	}
	return invalidTransition(o, "select payment for")
}

func invalidTransition(o *model.Order, action string) error {
	return errors.Wrapf(ErrInvalidTransition, "cannot %s order in stage %s (%s)", action, o.Stage, o.PaymentStatus)
}

func (l *orderLifecycle) SelectPayment(ctx context.Context, orderID uuid.UUID, in SelectPaymentInput) (*PaymentOutcome, error) {
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		return nil, validationError("%s", validator.Describe(errs))
	}

	if in.Method == model.PaymentCash {
		o, err := l.complete(ctx, orderID, model.PaymentCash, model.PaymentCODPending, ActorStorefront, canSelectPayment)
		if err != nil {
			return nil, err
		}
		return &PaymentOutcome{Order: o, Message: "Pay in cash when your order is delivered."}, nil
	}

	requestedAt := l.now()
	pending, err := l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		if err := canSelectPayment(o); err != nil {
			return false, err
		}
		o.Stage = model.StagePaymentPending
		o.PaymentMethod = model.PaymentMpesa
		o.PaymentStatus = model.PaymentPending
		o.PaymentReference = ""
		o.PaymentMessage = ""
		o.PaymentRequestedAt = &requestedAt
		o.UpdatedBy = ActorStorefront
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	phone := in.Phone
	if phone == "" {
		phone = pending.Customer.Phone
	}
	res := l.reconciler.Initiate(ctx, pending, phone)
	if !res.Accepted {
		failed, err := l.fail(ctx, orderID, res.Message, ActorGateway)
		if err != nil {
			return nil, err
		}
		return &PaymentOutcome{Order: failed, Message: res.Message}, errors.Wrap(ErrGatewayRejected, res.Message)
	}

	if _, err := l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		if o.Stage != model.StagePaymentPending {
			return false, nil
		}
		o.PaymentReference = res.GatewayReference
		o.PaymentMessage = res.Message
		return true, nil
	}); err != nil {
		return nil, err
	}

	settlement := l.reconciler.Await(ctx, res.GatewayReference)
	final, err := l.ApplySettlement(ctx, orderID, settlement)
	if errors.Is(err, ErrInvalidTransition) {
		// the order moved on while we waited (manual confirmation, cancel)
		final, err = l.store.FindOrder(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}

	out := &PaymentOutcome{Order: final, Instructions: res.Instructions, Message: settlement.Message}
	if settlement.Outcome == SettlementSilent && final.Stage == model.StagePaymentPending {
		out.NeedsManualConfirmation = true
		out.Message = manualConfirmationPrompt
	}
	return out, nil
}

func (l *orderLifecycle) ConfirmManually(ctx context.Context, orderID uuid.UUID, paid bool) (*model.Order, error) {
	if paid {
		return l.complete(ctx, orderID, "", model.PaymentPaid, ActorStorefront, func(o *model.Order) error {
			if o.Stage != model.StagePaymentPending {
				return invalidTransition(o, "confirm payment for")
			}
			return nil
		})
	}

	return l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		if o.Stage != model.StagePaymentPending {
			return false, invalidTransition(o, "defer payment for")
		}
		if o.PaymentStatus == model.PaymentPendingConfirmation {
			return false, nil
		}
		o.PaymentStatus = model.PaymentPendingConfirmation
		o.UpdatedBy = ActorStorefront
		return true, nil
	})
}

func (l *orderLifecycle) ApplySettlement(ctx context.Context, orderID uuid.UUID, s Settlement) (*model.Order, error) {
	switch s.Outcome {
	case SettlementCompleted:
		o, err := l.complete(ctx, orderID, "", model.PaymentPaid, ActorGateway, func(o *model.Order) error {
			// a late confirmation still counts after an expiry or failure
			if o.Stage == model.StagePaymentPending || o.Stage == model.StagePaymentFailed {
				return nil
			}
			if o.Stage == model.StageCancelled {
				zap.L().Warn("payment settled for a cancelled order",
					zap.String("order", o.ID.String()),
					zap.String("reference", o.PaymentReference),
				)
			}
			return invalidTransition(o, "settle")
		})
		if err != nil {
			return nil, err
		}
		if o.PaymentStatus == model.PaymentCODPending && o.PaymentReference != "" {
			return l.settleSwitchedToCash(ctx, orderID)
		}
		return o, nil
	case SettlementFailed:
		msg := s.Message
		if msg == "" {
			msg = "payment was not completed"
		}
		return l.fail(ctx, orderID, msg, ActorGateway)
	}
	return l.store.FindOrder(ctx, orderID)
}

// settleSwitchedToCash records a push payment that settled after the customer
// moved the order to cash on delivery. Stock already left with the cash
// switch, so only the payment fields change.
func (l *orderLifecycle) settleSwitchedToCash(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		if o.PaymentStatus != model.PaymentCODPending || o.PaymentReference == "" {
			return false, nil
		}
		zap.L().Warn("push payment settled for a cash on delivery order, cash must not be collected",
			zap.String("order", o.ID.String()),
			zap.String("reference", o.PaymentReference),
		)
		now := l.now()
		o.PaymentMethod = model.PaymentMpesa
		o.PaymentStatus = model.PaymentPaid
		o.Status = model.OrderCompleted
		o.PaidAt = &now
		o.UpdatedBy = ActorGateway
		return true, nil
	})
}

func (l *orderLifecycle) Expire(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error) {
	return l.fail(ctx, orderID, reason, ActorSweeper)
}

func (l *orderLifecycle) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error) {
	return l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		switch o.Stage {
		case model.StageCancelled:
			return false, nil
		case model.StageCreated, model.StagePaymentPending, model.StagePaymentFailed:
		default:
			return false, invalidTransition(o, "cancel")
		}
		o.Stage = model.StageCancelled
		o.Status = model.OrderCancelled
		o.CancelReason = reason
		o.UpdatedBy = ActorStorefront
		return true, nil
	})
}

func (l *orderLifecycle) MarkCashCollected(ctx context.Context, orderID uuid.UUID, actor string) (*model.Order, error) {
	return l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		if o.Stage != model.StagePaymentCompleted || o.PaymentMethod != model.PaymentCash {
			return false, invalidTransition(o, "collect cash for")
		}
		if o.PaymentStatus == model.PaymentPaid {
			return false, nil
		}
		now := l.now()
		o.PaymentStatus = model.PaymentPaid
		o.Status = model.OrderCompleted
		o.PaidAt = &now
		o.UpdatedBy = actor
		return true, nil
	})
}

func (l *orderLifecycle) fail(ctx context.Context, orderID uuid.UUID, message, actor string) (*model.Order, error) {
	return l.update(ctx, orderID, func(o *model.Order) (bool, error) {
		switch o.Stage {
		case model.StagePaymentFailed:
			return false, nil
		case model.StagePaymentPending:
		default:
			return false, invalidTransition(o, "fail payment for")
		}
		o.Stage = model.StagePaymentFailed
		o.PaymentStatus = model.PaymentFailed
		o.PaymentMessage = message
		o.UpdatedBy = actor
		return true, nil
	})
}

// update runs fn against a fresh copy of the order and saves it when fn
// reports a change. The event goes out after commit.
func (l *orderLifecycle) update(ctx context.Context, orderID uuid.UUID, fn func(o *model.Order) (bool, error)) (*model.Order, error) {
	var out *model.Order
	var changed bool
	err := l.store.RunTransaction(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		changed, err = fn(o)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.UpdateOrder(o); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		l.events.orderChanged(out)
	}
	return out, nil
}

// complete moves an order into payment_completed. Stock for every tracked
// line is removed in the same transaction that sets StockDecremented, so a
// repeated completion finds the flag and leaves the ledger alone.
func (l *orderLifecycle) complete(ctx context.Context, orderID uuid.UUID, method model.PaymentMethod, status model.PaymentStatus, actor string, allowed func(o *model.Order) error) (*model.Order, error) {
	var out *model.Order
	var entries []*LedgerEntry
	var changed bool
	err := l.store.RunTransaction(ctx, func(tx repository.Tx) error {
		entries = nil
		changed = false
		o, err := tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if o.Stage == model.StagePaymentCompleted {
			out = o
			return nil
		}
		if err := allowed(o); err != nil {
			return err
		}

		if !o.StockDecremented {
			id := o.ID
			for _, item := range o.Items {
				e, err := l.ledger.Apply(tx, Mutation{
					Kind:      MutationRemove,
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					Reason:    "order " + o.OrderNumber,
					OrderID:   &id,
					Actor:     actor,
				})
				if errors.Is(err, ErrStockNotTracked) {
					continue
				}
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
			o.StockDecremented = true
		}

		o.Stage = model.StagePaymentCompleted
		o.PaymentStatus = status
		if method != "" {
			o.PaymentMethod = method
		}
		if status == model.PaymentPaid {
			now := l.now()
			o.Status = model.OrderCompleted
			o.PaidAt = &now
		}
		o.UpdatedBy = actor
		if err := tx.UpdateOrder(o); err != nil {
			return err
		}
		out = o
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		zap.L().Info("order payment completed",
			zap.String("order", out.ID.String()),
			zap.String("payment_status", string(out.PaymentStatus)),
			zap.Int("ledger_entries", len(entries)),
		)
		warnClamped(entries...)
		l.events.stockChanged(entries...)
		l.events.orderChanged(out)
	}
	return out, nil
}
