package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/famvault/famvault/internal/auth"
	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/config"
	"github.com/famvault/famvault/internal/events"
	"github.com/famvault/famvault/internal/family"
	"github.com/famvault/famvault/internal/ledger"
	"github.com/famvault/famvault/internal/loan"
	"github.com/famvault/famvault/internal/market"
	"github.com/famvault/famvault/internal/middleware"
	"github.com/famvault/famvault/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Cross-cutting collaborators
	policy := authz.NewRolePolicy()
	sink := events.NewLoggerSink(d.Logger)

	// Repositories: Postgres when available, in-memory otherwise
	var (
		accountRepo  ledger.Repository
		transferRepo transfer.Repository
		loanRepo     loan.Repository
		marketRepo   market.Repository
		familyRepo   family.Repository
	)
	if d.DB != nil {
		accountRepo = ledger.NewPostgresRepository(d.DB)
		transferRepo = transfer.NewPostgresRepository(d.DB)
		loanRepo = loan.NewPostgresRepository(d.DB)
		marketRepo = market.NewPostgresRepository(d.DB)
		familyRepo = family.NewPostgresRepository(d.DB)
	} else {
		accountRepo = ledger.NewMemoryRepository()
		transferRepo = transfer.NewMemoryRepository()
		loanRepo = loan.NewMemoryRepository()
		marketRepo = market.NewMemoryRepository()
		familyRepo = family.NewMemoryRepository()
	}

	// Services
	accountSvc := ledger.NewService(accountRepo, policy, sink)
	transferSvc := transfer.NewService(transferRepo, accountSvc, policy, sink)
	loanSvc := loan.NewService(loanRepo, transferSvc, accountSvc, policy, sink)
	marketSvc := market.NewService(marketRepo, transferSvc, accountSvc, policy, sink)
	familySvc := family.NewService(familyRepo, policy, sink)
	tokenSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL)

	// Handlers
	authHandler := auth.NewHandler(familySvc, tokenSvc)
	familyHandler := family.NewHandler(familySvc)
	accountHandler := ledger.NewHandler(accountSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	loanHandler := loan.NewHandler(loanSvc)
	marketHandler := market.NewHandler(marketSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	api.Post("/families", familyHandler.Register)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(tokenSvc)
	protected := api.Group("", jwtmw)
	RegisterFamilyRoutes(protected, familyHandler)
	RegisterAccountRoutes(protected, accountHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterLoanRoutes(protected, loanHandler)
	RegisterMarketRoutes(protected, marketHandler)

	return nil
}
