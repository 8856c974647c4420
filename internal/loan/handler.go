package loan

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/famvault/famvault/internal/middleware"
)

// Handler exposes peer loan endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a loan HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestRequest struct {
	LenderID          string `json:"lender_id"`
	BorrowerAccountID string `json:"borrower_account_id"`
	LenderAccountID   string `json:"lender_account_id"`
	Principal         int64  `json:"principal"`
	InterestRate      string `json:"interest_rate"`
	TermDays          int    `json:"term_days"`
	Purpose           string `json:"purpose"`
	Schedule          string `json:"schedule"`
}

type loanResponse struct {
	ID                string    `json:"id"`
	FamilyID          string    `json:"family_id"`
	BorrowerID        string    `json:"borrower_id"`
	LenderID          string    `json:"lender_id"`
	BorrowerAccountID string    `json:"borrower_account_id"`
	LenderAccountID   string    `json:"lender_account_id"`
	Principal         int64     `json:"principal"`
	InterestRate      string    `json:"interest_rate"`
	TermDays          int       `json:"term_days"`
	Purpose           string    `json:"purpose,omitempty"`
	Schedule          string    `json:"schedule"`
	Status            string    `json:"status"`
	Payoff            int64     `json:"payoff"`
	AmountRepaid      int64     `json:"amount_repaid"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toLoanResponse(l Loan) loanResponse {
	return loanResponse{
		ID:                l.ID,
		FamilyID:          l.FamilyID,
		BorrowerID:        l.BorrowerID,
		LenderID:          l.LenderID,
		BorrowerAccountID: l.BorrowerAccountID,
		LenderAccountID:   l.LenderAccountID,
		Principal:         l.Principal,
		InterestRate:      l.InterestRate.String(),
		TermDays:          l.TermDays,
		Purpose:           l.Purpose,
		Schedule:          string(l.Schedule),
		Status:            string(l.Status),
		Payoff:            l.Payoff(),
		AmountRepaid:      l.AmountRepaid,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

// Request records a loan proposal between two family members.
func (h *Handler) Request(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req requestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := decimal.NewFromString(req.InterestRate)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid interest_rate")
	}
	l, err := h.service.Request(c.UserContext(), actor, RequestInput{
		BorrowerID:        actor.ID,
		LenderID:          req.LenderID,
		BorrowerAccountID: req.BorrowerAccountID,
		LenderAccountID:   req.LenderAccountID,
		Principal:         req.Principal,
		InterestRate:      rate,
		TermDays:          req.TermDays,
		Purpose:           req.Purpose,
		Schedule:          Schedule(req.Schedule),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toLoanResponse(l))
}

type approveRequest struct {
	GuardianApproved bool   `json:"guardian_approved"`
	LenderApproved   bool   `json:"lender_approved"`
	InterestRate     string `json:"interest_rate,omitempty"`
	TermDays         *int   `json:"term_days,omitempty"`
}

// Approve resolves a pending loan; both approvals disburse the principal.
func (h *Handler) Approve(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	input := ApproveInput{
		GuardianApproved: req.GuardianApproved,
		LenderApproved:   req.LenderApproved,
	}
	if req.InterestRate != "" || req.TermDays != nil {
		// Adjusted terms replace the requested ones wholesale.
		if req.InterestRate == "" || req.TermDays == nil {
			return fiber.NewError(http.StatusBadRequest, "adjusted terms need both interest_rate and term_days")
		}
		rate, err := decimal.NewFromString(req.InterestRate)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid interest_rate")
		}
		input.AdjustedTerms = &Terms{InterestRate: rate, TermDays: *req.TermDays}
	}
	l, err := h.service.Approve(c.UserContext(), actor, c.Params("loanId"), input)
	if err != nil {
		return err
	}
	return c.JSON(toLoanResponse(l))
}

type paymentRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

// Payment applies a repayment against an active loan.
func (h *Handler) Payment(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	l, err := h.service.MakePayment(c.UserContext(), actor, c.Params("loanId"), req.Amount, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(toLoanResponse(l))
}

type delinquencyRequest struct {
	Status string `json:"status"`
}

// Delinquency moves an active loan between ACTIVE, LATE and DEFAULTED.
func (h *Handler) Delinquency(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req delinquencyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	l, err := h.service.SetDelinquency(c.UserContext(), actor, c.Params("loanId"), Status(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(toLoanResponse(l))
}

// Get returns one loan.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	l, err := h.service.Get(c.UserContext(), actor, c.Params("loanId"))
	if err != nil {
		return err
	}
	return c.JSON(toLoanResponse(l))
}

// List returns the family's loans.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	loans, err := h.service.ListFamily(c.UserContext(), actor, actor.FamilyID)
	if err != nil {
		return err
	}
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l))
	}
	return c.JSON(out)
}
