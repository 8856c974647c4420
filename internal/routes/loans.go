package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/loan"
)

// RegisterLoanRoutes wires peer loan endpoints.
func RegisterLoanRoutes(r fiber.Router, h *loan.Handler) {
	group := r.Group("/loans")
	group.Post("", h.Request)
	group.Get("", h.List)
	group.Get("/:loanId", h.Get)
	group.Post("/:loanId/approve", h.Approve)
	group.Post("/:loanId/payments", h.Payment)
	group.Post("/:loanId/delinquency", h.Delinquency)
}
