package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wende-market/wende_market/internal/config"
	"github.com/wende-market/wende_market/internal/engine"
	"github.com/wende-market/wende_market/internal/ledger"
	"github.com/wende-market/wende_market/internal/logging"
	"github.com/wende-market/wende_market/internal/market"
	"github.com/wende-market/wende_market/internal/middleware"
	"github.com/wende-market/wende_market/internal/notification"
	"github.com/wende-market/wende_market/internal/registry"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares, builds the three settlement components and
// wires their call surface. Without a database every component runs on its
// in-memory store.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.CallerID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	// Every inbound call gets a fresh cross-component hop budget.
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(engine.WithBudget(c.UserContext(), d.Cfg.CallBudget))
		return c.Next()
	})

	// Health
	RegisterHealthRoutes(app, d)

	// Component stores
	var (
		ledgerStore   ledger.Store
		registryRepo  registry.Repository
		marketRepo    market.Repository
		ledgerCredits storagecredit.Store
		regCredits    storagecredit.Store
		marketCredits storagecredit.Store
	)
	if d.DB != nil {
		ledgerStore = ledger.NewPostgresStore(d.DB)
		registryRepo = registry.NewPostgresRepository(d.DB)
		marketRepo = market.NewPostgresRepository(d.DB)
		ledgerCredits = storagecredit.NewPostgresStore(d.DB, "ft")
		regCredits = storagecredit.NewPostgresStore(d.DB, "nft")
		marketCredits = storagecredit.NewPostgresStore(d.DB, "market")
	} else {
		ledgerStore = ledger.NewInMemory()
		registryRepo = registry.NewMemoryRepository()
		marketRepo = market.NewMemoryRepository()
		ledgerCredits = storagecredit.NewInMemory()
		regCredits = storagecredit.NewInMemory()
		marketCredits = storagecredit.NewInMemory()
	}

	ctx := context.Background()

	ledgerSvc, err := ledger.NewService(ctx, d.Cfg.FTTokenID, ledgerStore,
		storagecredit.NewService(ledgerCredits, d.Cfg.StorageBytePrice),
		d.Cfg.FTOwnerID, d.Cfg.FTTotalSupply, logging.WithComponent(d.Logger, "ledger"))
	if err != nil {
		return err
	}

	registrySvc := registry.NewService(d.Cfg.NFTContractID, registryRepo,
		storagecredit.NewService(regCredits, d.Cfg.StorageBytePrice),
		logging.WithComponent(d.Logger, "registry"))

	notifier := notification.NewLoggerNotifier(logging.WithComponent(d.Logger, "notification"))
	marketSvc := market.NewService(d.Cfg.MarketAccountID, d.Cfg.MarketOwnerID, marketRepo,
		storagecredit.NewService(marketCredits, d.Cfg.StorageBytePrice),
		registrySvc, ledgerSvc, notifier, logging.WithComponent(d.Logger, "market"))

	// The coordinator settles against its own ledger account; register it so
	// buyer payments have somewhere to land.
	if err := ledgerSvc.Register(ctx, d.Cfg.MarketAccountID, ledgerSvc.StorageMinimumBalance()); err != nil && err != ledger.ErrAlreadyRegistered {
		return err
	}

	// Notify entry points
	ledgerSvc.RegisterReceiver(d.Cfg.MarketAccountID, marketSvc)
	registrySvc.RegisterReceiver(d.Cfg.MarketAccountID, marketSvc)

	ledgerHandler := ledger.NewHandler(ledgerSvc)
	registryHandler := registry.NewHandler(registrySvc)
	marketHandler := market.NewHandler(marketSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.CallRateLimit(d.Cache, 30)
	RegisterLedgerRoutes(api, ledgerHandler, rateLimiter)
	RegisterRegistryRoutes(api, registryHandler)
	RegisterMarketRoutes(api, marketHandler, middleware.AdminKey(d.Cfg.AdminKeyHash))

	return nil
}
