package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/transfer"
)

// RegisterTransferRoutes wires the transfer approval workflow endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	group := r.Group("/transfers")
	group.Post("", h.Request)
	group.Get("", h.List)
	group.Get("/:transferId", h.Get)
	group.Post("/:transferId/approve", h.Approve)
	group.Post("/:transferId/reject", h.Reject)
	group.Post("/:transferId/cancel", h.Cancel)
}
