package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-storefront-ledger/internal/config"
	"go-storefront-ledger/internal/gateway/mpesa"
	"go-storefront-ledger/internal/handler"
	"go-storefront-ledger/internal/repository"
	"go-storefront-ledger/internal/service"
	"go-storefront-ledger/internal/ws"
	"go-storefront-ledger/pkg/jwt"
	"go-storefront-ledger/pkg/logger"

	"github.com/asaskevich/EventBus"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Options{}).Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.Init(logger.Options{Mode: cfg.Log.Mode, File: cfg.Log.File})
	defer log.Sync()

	// 2. Setup store
	store, closeStore, err := repository.Open(repository.OpenOptions{
		Driver:  cfg.StoreDriver,
		DSN:     cfg.Database.DSN(),
		Verbose: cfg.Log.Mode != "production",
		Migrate: true,
		Policy: repository.RetryPolicy{
			MaxAttempts: cfg.TxMaxAttempts,
			BaseDelay:   10 * time.Millisecond,
			MaxDelay:    200 * time.Millisecond,
		},
	})
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	// 3. Events and WebSocket hub
	bus := EventBus.New()
	wsHub := ws.NewHub()
	go wsHub.Run()
	if err := wsHub.Subscribe(bus); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// 4. Dependency Injection (Wiring Layers)
	gateway, err := mpesa.NewClient(mpesa.Config{
		BaseURL: cfg.Mpesa.BaseURL,
		APIKey:  cfg.Mpesa.APIKey,
		Timeout: cfg.Mpesa.Timeout,
	})
	if err != nil {
		log.Fatal("failed to configure M-Pesa", zap.Error(err))
	}

	var (
		watcher   service.SettlementWatcher
		callbacks *service.CallbackWatcher
	)
	if cfg.Payment.SettlementMode == "callback" {
		callbacks = service.NewCallbackWatcher(cfg.Payment.AwaitWindow())
		watcher = callbacks
	} else {
		watcher = service.NewPollingWatcher(gateway, cfg.Payment.PollAttempts, cfg.Payment.PollInterval)
	}

	numbers, err := service.NewOrderNumbers(cfg.SnowflakeNode)
	if err != nil {
		log.Fatal("failed to create order numbers", zap.Error(err))
	}

	events := service.NewEvents(bus)
	ledger := service.NewStockLedger(store, events)
	aggregator := service.NewStockAggregator(store)
	reconciler := service.NewPaymentReconciler(gateway, watcher)
	lifecycle := service.NewOrderLifecycle(store, ledger, reconciler, numbers, events)

	sweeper, err := service.NewPaymentSweeper(store, lifecycle, reconciler, service.SweeperOptions{
		PendingTTL: cfg.Payment.PendingTTL,
		MinAge:     cfg.Payment.AwaitWindow(),
		Workers:    cfg.Payment.SweepWorkers,
	})
	if err != nil {
		log.Fatal("failed to create payment sweeper", zap.Error(err))
	}
	if err := sweeper.Start(cfg.Payment.SweepSchedule); err != nil {
		log.Fatal("failed to schedule payment sweeper", zap.Error(err))
	}

	signer := jwt.NewSigner(cfg.JWTSecret, 24*time.Hour)
	router := &handler.Router{
		Inventory:   handler.NewInventoryHandler(ledger),
		Dashboard:   handler.NewDashboardHandler(aggregator),
		Orders:      handler.NewOrderHandler(lifecycle),
		Settlements: handler.NewSettlementHandler(lifecycle, callbacks),
		Signer:      signer,
	}

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: "Storefront Ledger v1.0",
		// mpesa checkout holds the request while the customer answers the prompt
		ReadTimeout:  cfg.Payment.AwaitWindow() + cfg.Mpesa.Timeout + 10*time.Second,
		WriteTimeout: cfg.Payment.AwaitWindow() + cfg.Mpesa.Timeout + 10*time.Second,
	})

	// Middleware
	app.Use(fiberlogger.New()) // Logging request
	app.Use(recover.New())     // Panic recovery
	app.Use(cors.New())        // CORS

	// 6. Routes
	router.Mount(app)

	// WebSocket Route; browsers cannot set headers, so the token comes in the query
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.SendStatus(fiber.StatusUpgradeRequired)
		}
		claims, err := signer.ValidateToken(c.Query("token"))
		if err != nil || claims.Role != jwt.RoleMerchant {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
		c.Locals("tenant_id", claims.TenantID)
		return c.Next()
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		tenantID, _ := c.Locals("tenant_id").(string)
		wsHub.Register <- ws.Client{Conn: c, TenantID: tenantID}
		defer func() { wsHub.Unregister <- c }()

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 7. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Panic("server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	sweeper.Stop()
	if err := app.Shutdown(); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	wsHub.Unsubscribe(bus)
	bus.WaitAsync()
	wsHub.Stop()

	log.Info("server exited")
}
