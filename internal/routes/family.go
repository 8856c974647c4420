package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/family"
)

// RegisterFamilyRoutes wires member management endpoints.
func RegisterFamilyRoutes(r fiber.Router, h *family.Handler) {
	r.Get("/me", h.Me)
	group := r.Group("/members")
	group.Post("", h.AddMember)
	group.Get("", h.ListMembers)
}
