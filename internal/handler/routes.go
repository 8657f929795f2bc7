package handler

import (
	"go-storefront-ledger/internal/middleware"
	"go-storefront-ledger/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

type Router struct {
	Inventory   *InventoryHandler
	Dashboard   *DashboardHandler
	Orders      *OrderHandler
	Settlements *SettlementHandler
	Signer      *jwt.Signer
}

// Mount registers the /api/v1 routes.
func (r *Router) Mount(app *fiber.App) {
	api := app.Group("/api/v1")

	// ============ STOREFRONT (public) ============
	orders := api.Group("/orders")
	orders.Post("/", r.Orders.CreateOrder)
	orders.Get("/:id", r.Orders.GetOrder)
	orders.Post("/:id/payment", r.Orders.SelectPayment)
	orders.Post("/:id/confirm", r.Orders.ConfirmPayment)
	orders.Post("/:id/cancel", r.Orders.CancelOrder)

	// ============ PAYMENT GATEWAY ============
	api.Post("/payments/settlements",
		middleware.RequireAuth(r.Signer),
		middleware.RequireRole(jwt.RoleService),
		r.Settlements.Receive,
	)

	// ============ MERCHANT ============
	merchant := api.Group("", middleware.RequireAuth(r.Signer), middleware.RequireRole(jwt.RoleMerchant))

	merchant.Get("/products", r.Inventory.GetProducts)
	merchant.Post("/products", r.Inventory.CreateProduct)
	merchant.Post("/products/:id/stock/add", r.Inventory.AddStock)
	merchant.Post("/products/:id/stock/remove", r.Inventory.RemoveStock)
	merchant.Post("/products/:id/stock/set", r.Inventory.SetStock)
	merchant.Get("/products/:id/history", r.Inventory.GetHistory)

	merchant.Get("/dashboard/stats", r.Dashboard.GetDashboardStats)
	merchant.Get("/dashboard/low-stock", r.Dashboard.GetLowStock)
	merchant.Get("/dashboard/export", r.Dashboard.Export)

	merchant.Post("/orders/:id/cash-collected", r.Orders.MarkCashCollected)
}
