package transfer

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/middleware"
)

// Handler exposes transfer workflow endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Category      string `json:"category"`
	Memo          string `json:"memo"`
}

type transferResponse struct {
	ID            string    `json:"id"`
	FamilyID      string    `json:"family_id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Category      string    `json:"category"`
	Memo          string    `json:"memo,omitempty"`
	RequesterID   string    `json:"requester_id"`
	Status        string    `json:"status"`
	ApproverNotes string    `json:"approver_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toTransferResponse(t Transfer) transferResponse {
	return transferResponse{
		ID:            t.ID,
		FamilyID:      t.FamilyID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		Category:      t.Category,
		Memo:          t.Memo,
		RequesterID:   t.RequesterID,
		Status:        string(t.Status),
		ApproverNotes: t.ApproverNotes,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// Request records a transfer awaiting guardian approval.
func (h *Handler) Request(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req requestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	t, err := h.service.Request(c.UserContext(), actor, RequestInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Category:      req.Category,
		Memo:          req.Memo,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toTransferResponse(t))
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// Approve settles a requested transfer.
func (h *Handler) Approve(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req decisionRequest
	_ = c.BodyParser(&req)
	t, err := h.service.Approve(c.UserContext(), actor, c.Params("transferId"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(toTransferResponse(t))
}

// Reject declines a requested transfer.
func (h *Handler) Reject(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req decisionRequest
	_ = c.BodyParser(&req)
	t, err := h.service.Reject(c.UserContext(), actor, c.Params("transferId"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(toTransferResponse(t))
}

// Cancel withdraws the requester's own pending transfer.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	t, err := h.service.Cancel(c.UserContext(), actor, c.Params("transferId"))
	if err != nil {
		return err
	}
	return c.JSON(toTransferResponse(t))
}

// Get returns one transfer.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	t, err := h.service.Get(c.UserContext(), actor, c.Params("transferId"))
	if err != nil {
		return err
	}
	return c.JSON(toTransferResponse(t))
}

// List returns the family's transfers, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	transfers, err := h.service.ListFamily(c.UserContext(), actor, actor.FamilyID)
	if err != nil {
		return err
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	return c.JSON(out)
}
