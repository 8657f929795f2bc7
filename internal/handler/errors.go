package handler

import (
	"go-storefront-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// respondError maps service sentinels to status codes. Store and unexpected
// errors are logged and answered with a fixed message.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, service.ErrInsufficientStock):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrStockNotTracked):
		return c.Status(422).JSON(fiber.Map{"error": "Product does not track stock"})
	case errors.Is(err, service.ErrGatewayRejected):
		return c.Status(402).JSON(fiber.Map{"error": "Payment request was rejected"})
	case errors.Is(err, service.ErrStoreUnavailable):
		zap.S().Warnw("store unavailable", "path", c.Path(), "error", err)
		return c.Status(503).JSON(fiber.Map{"error": "Service temporarily unavailable, please retry"})
	}
	zap.S().Errorw("request failed", "path", c.Path(), "error", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}
