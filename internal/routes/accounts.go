package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/ledger"
)

// RegisterAccountRoutes wires account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *ledger.Handler) {
	group := r.Group("/accounts")
	group.Post("", h.Open)
	group.Get("", h.List)
	group.Get("/:accountId", h.Get)
	group.Post("/:accountId/close", h.Close)
	group.Post("/:accountId/deposit", h.Deposit)
	group.Post("/:accountId/withdraw", h.Withdraw)
}
