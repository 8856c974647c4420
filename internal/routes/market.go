package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/market"
)

// RegisterMarketRoutes wires marketplace endpoints.
func RegisterMarketRoutes(r fiber.Router, h *market.Handler) {
	listings := r.Group("/listings")
	listings.Post("", h.CreateListing)
	listings.Get("", h.ListListings)
	listings.Get("/:listingId", h.GetListing)
	listings.Post("/:listingId/cancel", h.CancelListing)
	listings.Post("/:listingId/purchase", h.Purchase)

	purchases := r.Group("/purchases")
	purchases.Get("/:purchaseId", h.GetPurchase)
	purchases.Post("/:purchaseId/approve", h.ApprovePurchase)
}
