package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	OwnerID        string `json:"owner_id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	MinBalance     int64  `json:"min_balance"`
	InitialBalance int64  `json:"initial_balance"`
}

type accountResponse struct {
	ID         string    `json:"id"`
	FamilyID   string    `json:"family_id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Balance    int64     `json:"balance"`
	MinBalance int64     `json:"min_balance"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		FamilyID:   a.FamilyID,
		OwnerID:    a.OwnerID,
		Name:       a.Name,
		Kind:       string(a.Kind),
		Balance:    a.Balance,
		MinBalance: a.MinBalance,
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// Open provisions an account for a family member.
func (h *Handler) Open(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = actor.ID
	}
	account, err := h.service.Open(c.UserContext(), actor, OpenInput{
		FamilyID:       actor.FamilyID,
		OwnerID:        ownerID,
		Name:           req.Name,
		Kind:           Kind(req.Kind),
		MinBalance:     req.MinBalance,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(account))
}

// Get returns one account.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	account, err := h.service.Get(c.UserContext(), actor, c.Params("accountId"))
	if err != nil {
		return err
	}
	return c.JSON(toAccountResponse(account))
}

// List returns the family's accounts, optionally filtered by kind.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	accounts, err := h.service.ListFamily(c.UserContext(), actor, actor.FamilyID, Kind(c.Query("kind")))
	if err != nil {
		return err
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return c.JSON(out)
}

// Close soft-closes an account.
func (h *Handler) Close(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	account, err := h.service.Close(c.UserContext(), actor, c.Params("accountId"))
	if err != nil {
		return err
	}
	return c.JSON(toAccountResponse(account))
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit credits external money into an account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.adjust(c, h.service.Deposit)
}

// Withdraw debits money out of an account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.adjust(c, h.service.Withdraw)
}

func (h *Handler) adjust(c *fiber.Ctx, op func(ctx context.Context, actor domain.ActorContext, id string, amount int64) (int64, error)) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := op(c.UserContext(), actor, c.Params("accountId"), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"account_id": c.Params("accountId"),
		"balance":    balance,
		"timestamp":  time.Now().UTC(),
	})
}
