package handler

import (
	"fmt"
	"time"

	"go-storefront-ledger/internal/middleware"
	"go-storefront-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/montanaflynn/stats"
)

type DashboardHandler struct {
	aggregator service.StockAggregator
}

func NewDashboardHandler(a service.StockAggregator) *DashboardHandler {
	return &DashboardHandler{aggregator: a}
}

// GetDashboardStats returns overview statistics
func (h *DashboardHandler) GetDashboardStats(c *fiber.Ctx) error {
	st, err := h.aggregator.GetStatistics(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}
	// two decimals on the dashboard; the aggregator keeps the exact mean
	view := *st
	view.AverageStockLevel, _ = stats.Round(st.AverageStockLevel, 2)
	return c.JSON(view)
}

func (h *DashboardHandler) GetLowStock(c *fiber.Ctx) error {
	products, err := h.aggregator.LowStockProducts(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"count": len(products),
		"data":  products,
	})
}

// Export streams the catalogue as a spreadsheet.
// Query params: format (csv|xlsx, default csv)
func (h *DashboardHandler) Export(c *fiber.Ctx) error {
	format, err := service.ParseExportFormat(c.Query("format", "csv"))
	if err != nil {
		return respondError(c, err)
	}

	filename := fmt.Sprintf("stock-%s.%s", time.Now().Format("20060102"), format)
	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	if err := h.aggregator.Export(c.UserContext(), middleware.TenantID(c), format, c.Response().BodyWriter()); err != nil {
		c.Response().ResetBody()
		c.Set(fiber.HeaderContentDisposition, "")
		return respondError(c, err)
	}
	return nil
}
