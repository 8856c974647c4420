package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/family"
)

// Handler exposes the login endpoint.
type Handler struct {
	families *family.Service
	tokens   *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(families *family.Service, tokens *Service) *Handler {
	return &Handler{families: families, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type loginResponse struct {
	MemberID    string `json:"member_id"`
	FamilyID    string `json:"family_id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := h.families.Authenticate(c.UserContext(), family.Credentials{Username: req.Username, PIN: req.PIN})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid username or PIN")
	}
	token, err := h.tokens.Issue(m)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		MemberID:    m.ID,
		FamilyID:    m.FamilyID,
		Role:        string(m.Role),
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
	})
}
