package handler

import (
	"go-storefront-ledger/internal/middleware"
	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type InventoryHandler struct {
	ledger service.StockLedger
}

func NewInventoryHandler(l service.StockLedger) *InventoryHandler {
	return &InventoryHandler{ledger: l}
}

type createProductRequest struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	StockQuantity   int             `json:"stock_quantity"`
	MinStockLevel   int             `json:"min_stock_level"`
	MaxStockLevel   int             `json:"max_stock_level"`
	AllowBackorders bool            `json:"allow_backorders"`
	// TrackStock defaults to true when omitted.
	TrackStock *bool `json:"track_stock"`
}

type stockRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *InventoryHandler) GetProducts(c *fiber.Ctx) error {
	products, err := h.ledger.ListProducts(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

func (h *InventoryHandler) CreateProduct(c *fiber.Ctx) error {
	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	product := &model.Product{
		TenantID:        middleware.TenantID(c),
		SKU:             req.SKU,
		Name:            req.Name,
		Category:        req.Category,
		Price:           req.Price,
		StockQuantity:   req.StockQuantity,
		MinStockLevel:   req.MinStockLevel,
		MaxStockLevel:   req.MaxStockLevel,
		AllowBackorders: req.AllowBackorders,
		TrackStock:      req.TrackStock == nil || *req.TrackStock,
	}

	created, err := h.ledger.RegisterProduct(c.UserContext(), product, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Product created", "data": created})
}

func (h *InventoryHandler) AddStock(c *fiber.Ctx) error {
	return h.mutate(c, func(id uuid.UUID, req stockRequest, actor string) (*service.LedgerEntry, error) {
		return h.ledger.AddStock(c.UserContext(), id, req.Quantity, req.Reason, actor)
	})
}

func (h *InventoryHandler) RemoveStock(c *fiber.Ctx) error {
	return h.mutate(c, func(id uuid.UUID, req stockRequest, actor string) (*service.LedgerEntry, error) {
		return h.ledger.RemoveStock(c.UserContext(), id, req.Quantity, req.Reason, nil, actor)
	})
}

func (h *InventoryHandler) SetStock(c *fiber.Ctx) error {
	return h.mutate(c, func(id uuid.UUID, req stockRequest, actor string) (*service.LedgerEntry, error) {
		return h.ledger.SetStock(c.UserContext(), id, req.Quantity, req.Reason, actor)
	})
}

func (h *InventoryHandler) mutate(c *fiber.Ctx, apply func(id uuid.UUID, req stockRequest, actor string) (*service.LedgerEntry, error)) error {
	product, err := h.ownedProduct(c)
	if err != nil {
		return respondError(c, err)
	}

	var req stockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	entry, err := apply(product.ID, req, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Stock updated",
		"data":        entry.Product,
		"transaction": entry.Transaction,
		"clamped":     entry.Clamped,
	})
}

func (h *InventoryHandler) GetHistory(c *fiber.Ctx) error {
	product, err := h.ownedProduct(c)
	if err != nil {
		return respondError(c, err)
	}
	history, err := h.ledger.GetHistory(c.UserContext(), product.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}

// ownedProduct loads the :id product and hides products of other tenants.
func (h *InventoryHandler) ownedProduct(c *fiber.Ctx) (*model.Product, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, errors.Wrap(service.ErrValidation, "invalid product ID")
	}
	product, err := h.ledger.GetProduct(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if product.TenantID != middleware.TenantID(c) {
		return nil, service.ErrNotFound
	}
	return product, nil
}
