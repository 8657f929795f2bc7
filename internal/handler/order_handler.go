package handler

import (
	"go-storefront-ledger/internal/middleware"
	"go-storefront-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

type OrderHandler struct {
	lifecycle service.OrderLifecycle
}

func NewOrderHandler(l service.OrderLifecycle) *OrderHandler {
	return &OrderHandler{lifecycle: l}
}

type confirmRequest struct {
	Paid bool `json:"paid"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var in service.CreateOrderInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	order, err := h.lifecycle.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Order created", "data": order})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid order ID"})
	}
	order, err := h.lifecycle.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// SelectPayment may block while the customer answers the M-Pesa prompt.
func (h *OrderHandler) SelectPayment(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid order ID"})
	}
	var in service.SelectPaymentInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	outcome, err := h.lifecycle.SelectPayment(c.UserContext(), id, in)
	if errors.Is(err, service.ErrGatewayRejected) && outcome != nil {
		return c.Status(402).JSON(fiber.Map{"error": outcome.Message, "data": outcome})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(outcome)
}

func (h *OrderHandler) ConfirmPayment(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid order ID"})
	}
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	order, err := h.lifecycle.ConfirmManually(c.UserContext(), id, req.Paid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid order ID"})
	}
	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
		}
	}

	order, err := h.lifecycle.Cancel(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// MarkCashCollected is called by the merchant once the courier hands over
// the cash of a COD order.
func (h *OrderHandler) MarkCashCollected(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid order ID"})
	}
	order, err := h.lifecycle.Get(c.UserContext(), id)
	if err == nil && order.TenantID != middleware.TenantID(c) {
		err = service.ErrNotFound
	}
	if err != nil {
		return respondError(c, err)
	}

	order, err = h.lifecycle.MarkCashCollected(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}
