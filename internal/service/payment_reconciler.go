package service

import (
	"context"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/pkg/validator"

	"go.uber.org/zap"
)

// GatewayState is what the gateway reports for a push request.
type GatewayState string

const (
	GatewayPending   GatewayState = "pending"
	GatewayCompleted GatewayState = "completed"
	GatewayFailed    GatewayState = "failed"
)

type PushRequest struct {
	Phone       string
	AmountMinor int64
	Reference   string
	Description string
}

type PushResult struct {
	Accepted         bool   `json:"accepted"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	Message          string `json:"message,omitempty"`
}

// PaymentGateway is the push-payment provider. CheckStatus is best effort:
// errors and pending answers are both treated as "no answer yet".
type PaymentGateway interface {
	InitiatePushPayment(ctx context.Context, req PushRequest) (*PushResult, error)
	CheckStatus(ctx context.Context, gatewayRef string) (GatewayState, error)
}

type SettlementOutcome string

const (
	SettlementCompleted SettlementOutcome = "completed"
	SettlementFailed    SettlementOutcome = "failed"
	// SettlementSilent means no definitive answer arrived in time. It is not
	// an error: the order stays pending and the customer is asked.
	SettlementSilent SettlementOutcome = "silent"
)

type Settlement struct {
	Outcome SettlementOutcome `json:"outcome"`
	Message string            `json:"message,omitempty"`
}

// SettlementFor maps a gateway answer to a verdict; pending is silent.
func SettlementFor(state GatewayState) Settlement {
	switch state {
	case GatewayCompleted:
		return Settlement{Outcome: SettlementCompleted}
	case GatewayFailed:
		return Settlement{Outcome: SettlementFailed, Message: "payment was not completed"}
	}
	return Settlement{Outcome: SettlementSilent}
}

const gatewayUnavailableMessage = "payment service is unavailable, please try again"

// PaymentReconciler bridges a push request and its eventual settlement. It
// never touches orders; the lifecycle applies whatever it decides.
type PaymentReconciler interface {
	Initiate(ctx context.Context, order *model.Order, phone string) *PushResult
	Await(ctx context.Context, gatewayRef string) Settlement
	Recheck(ctx context.Context, gatewayRef string) Settlement
}

type paymentReconciler struct {
	gateway PaymentGateway
	watcher SettlementWatcher
}

func NewPaymentReconciler(gateway PaymentGateway, watcher SettlementWatcher) PaymentReconciler {
	return &paymentReconciler{gateway: gateway, watcher: watcher}
}

// Initiate sends the push request keyed by the order id. A transport error
// is reported as a rejection so the customer can choose again.
func (r *paymentReconciler) Initiate(ctx context.Context, order *model.Order, phone string) *PushResult {
	req := PushRequest{
		Phone:       validator.ToMSISDN(phone),
		AmountMinor: order.AmountMinorUnits(),
		Reference:   order.ID.String(),
		Description: "Order " + order.OrderNumber,
	}
	res, err := r.gateway.InitiatePushPayment(ctx, req)
	if err != nil {
		zap.L().Error("push payment request failed",
			zap.String("order", order.ID.String()),
			zap.Error(err),
		)
		return &PushResult{Accepted: false, Message: gatewayUnavailableMessage}
	}
	if res.Accepted && res.GatewayReference == "" {
		res.GatewayReference = req.Reference
	}
	return res
}

func (r *paymentReconciler) Await(ctx context.Context, gatewayRef string) Settlement {
	s, err := r.watcher.Await(ctx, gatewayRef)
	if err != nil {
		zap.L().Info("stopped waiting for settlement",
			zap.String("reference", gatewayRef),
			zap.Error(err),
		)
		return Settlement{Outcome: SettlementSilent}
	}
	return s
}

// Recheck asks the gateway once.
func (r *paymentReconciler) Recheck(ctx context.Context, gatewayRef string) Settlement {
	state, err := r.gateway.CheckStatus(ctx, gatewayRef)
	if err != nil {
		zap.L().Debug("status check failed", zap.String("reference", gatewayRef), zap.Error(err))
		return Settlement{Outcome: SettlementSilent}
	}
	return SettlementFor(state)
}
