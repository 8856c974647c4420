package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/domain"
)

// statusOf maps domain error kinds onto HTTP statuses.
func statusOf(kind *domain.Kind) int {
	switch kind {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.ErrAccountClosed, domain.ErrInvalidStateTransition, domain.ErrConcurrentModification:
		return http.StatusConflict
	case domain.ErrPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders handler errors. Domain errors become structured JSON
// with a stable error code; fiber errors keep their status; anything else is
// a 500 with the detail kept out of the response body.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var de *domain.Error
		if errors.As(err, &de) {
			status := statusOf(de.Kind)
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", "path", c.Path(), "error", err)
				return c.Status(status).JSON(fiber.Map{"error": de.Kind.Error()})
			}
			body := fiber.Map{"error": de.Kind.Error(), "message": de.Message}
			if de.Entity != "" {
				body["entity"] = de.Entity
			}
			if len(de.Details) > 0 {
				body["details"] = de.Details
			}
			return c.Status(status).JSON(body)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
