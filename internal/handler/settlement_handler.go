package handler

import (
	"go-storefront-ledger/internal/service"
	"go-storefront-ledger/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementHandler takes payment results pushed by the gateway function.
type SettlementHandler struct {
	lifecycle service.OrderLifecycle
	callbacks *service.CallbackWatcher
}

// NewSettlementHandler accepts a nil watcher when settlement is polled.
func NewSettlementHandler(l service.OrderLifecycle, callbacks *service.CallbackWatcher) *SettlementHandler {
	return &SettlementHandler{lifecycle: l, callbacks: callbacks}
}

type settlementRequest struct {
	OrderID          uuid.UUID            `json:"order_id" validate:"uuid_required"`
	GatewayReference string               `json:"gateway_reference" validate:"required"`
	State            service.GatewayState `json:"state" validate:"required,oneof=pending completed failed"`
	Message          string               `json:"message"`
}

func (h *SettlementHandler) Receive(c *fiber.Ctx) error {
	var req settlementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Validation failed", "details": errs})
	}

	order, err := h.lifecycle.Get(c.UserContext(), req.OrderID)
	if err != nil {
		return respondError(c, err)
	}
	if order.PaymentReference != req.GatewayReference {
		zap.S().Warnw("settlement for unknown payment reference",
			"order_id", order.ID, "reference", req.GatewayReference)
		return c.Status(409).JSON(fiber.Map{"error": "Payment reference does not match the order"})
	}

	settlement := service.SettlementFor(req.State)
	if req.Message != "" && settlement.Outcome == service.SettlementFailed {
		settlement.Message = req.Message
	}

	// A checkout request still waiting on this reference applies the result itself.
	if h.callbacks != nil && h.callbacks.Notify(req.GatewayReference, settlement) {
		return c.Status(202).JSON(fiber.Map{"message": "Settlement delivered"})
	}

	order, err = h.lifecycle.ApplySettlement(c.UserContext(), order.ID, settlement)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Settlement applied", "data": order})
}
