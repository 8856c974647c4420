package market

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/middleware"
)

// Handler exposes marketplace endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a marketplace HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type listingRequest struct {
	SellerAccountID string `json:"seller_account_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Price           int64  `json:"price"`
	Condition       string `json:"condition"`
}

type listingResponse struct {
	ID              string    `json:"id"`
	FamilyID        string    `json:"family_id"`
	SellerID        string    `json:"seller_id"`
	SellerAccountID string    `json:"seller_account_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Price           int64     `json:"price"`
	Condition       string    `json:"condition"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toListingResponse(l Listing) listingResponse {
	return listingResponse{
		ID:              l.ID,
		FamilyID:        l.FamilyID,
		SellerID:        l.SellerID,
		SellerAccountID: l.SellerAccountID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Condition:       l.Condition,
		Status:          string(l.Status),
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

type purchaseResponse struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listing_id"`
	FamilyID       string    `json:"family_id"`
	BuyerID        string    `json:"buyer_id"`
	BuyerAccountID string    `json:"buyer_account_id"`
	Price          int64     `json:"price"`
	Message        string    `json:"message,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Status         string    `json:"status"`
	TransferID     string    `json:"transfer_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toPurchaseResponse(p Purchase) purchaseResponse {
	return purchaseResponse{
		ID:             p.ID,
		ListingID:      p.ListingID,
		FamilyID:       p.FamilyID,
		BuyerID:        p.BuyerID,
		BuyerAccountID: p.BuyerAccountID,
		Price:          p.Price,
		Message:        p.Message,
		Notes:          p.Notes,
		Status:         string(p.Status),
		TransferID:     p.TransferID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// CreateListing offers an item for sale.
func (h *Handler) CreateListing(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req listingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	l, err := h.service.CreateListing(c.UserContext(), actor, ListingInput{
		SellerAccountID: req.SellerAccountID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		Condition:       req.Condition,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toListingResponse(l))
}

// CancelListing withdraws the seller's own listing.
func (h *Handler) CancelListing(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	l, err := h.service.CancelListing(c.UserContext(), actor, c.Params("listingId"))
	if err != nil {
		return err
	}
	return c.JSON(toListingResponse(l))
}

// GetListing returns one listing.
func (h *Handler) GetListing(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	l, err := h.service.GetListing(c.UserContext(), actor, c.Params("listingId"))
	if err != nil {
		return err
	}
	return c.JSON(toListingResponse(l))
}

// ListListings returns the family's listings.
func (h *Handler) ListListings(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	listings, err := h.service.ListListings(c.UserContext(), actor, actor.FamilyID)
	if err != nil {
		return err
	}
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	return c.JSON(out)
}

type purchaseRequest struct {
	BuyerAccountID string `json:"buyer_account_id"`
	OfferedPrice   int64  `json:"offered_price"`
	Message        string `json:"message"`
}

// Purchase records an offer against a listing.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Purchase(c.UserContext(), actor, PurchaseInput{
		ListingID:      c.Params("listingId"),
		BuyerAccountID: req.BuyerAccountID,
		OfferedPrice:   req.OfferedPrice,
		Message:        req.Message,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toPurchaseResponse(p))
}

type approvePurchaseRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// ApprovePurchase resolves a pending purchase.
func (h *Handler) ApprovePurchase(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req approvePurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.ApprovePurchase(c.UserContext(), actor, c.Params("purchaseId"), req.Approved, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(toPurchaseResponse(p))
}

// GetPurchase returns one purchase.
func (h *Handler) GetPurchase(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	p, err := h.service.GetPurchase(c.UserContext(), actor, c.Params("purchaseId"))
	if err != nil {
		return err
	}
	return c.JSON(toPurchaseResponse(p))
}
