package family

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/middleware"
)

// Handler exposes family and member endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a family HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	FamilyName   string `json:"family_name"`
	GuardianName string `json:"guardian_name"`
	Username     string `json:"username"`
	PIN          string `json:"pin"`
}

type memberResponse struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toMemberResponse(m Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		FamilyID:  m.FamilyID,
		Username:  m.Username,
		Name:      m.Name,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

// Register creates a family with its first guardian.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	f, guardian, err := h.service.Register(c.UserContext(), RegisterInput{
		FamilyName:   req.FamilyName,
		GuardianName: req.GuardianName,
		Username:     req.Username,
		PIN:          req.PIN,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"family_id":   f.ID,
		"family_name": f.Name,
		"guardian":    toMemberResponse(guardian),
	})
}

type addMemberRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	PIN      string `json:"pin"`
	Role     string `json:"role"`
}

// AddMember enrolls a member in the caller's family.
func (h *Handler) AddMember(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := h.service.AddMember(c.UserContext(), actor, MemberInput{
		Name:     req.Name,
		Username: req.Username,
		PIN:      req.PIN,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toMemberResponse(m))
}

// ListMembers returns the caller's family roster.
func (h *Handler) ListMembers(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	members, err := h.service.ListMembers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	return c.JSON(out)
}

// Me returns the authenticated member's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	actor, ok := middleware.Actor(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	m, err := h.service.Member(c.UserContext(), actor, actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(toMemberResponse(m))
}
