package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request identifier on both the wire and the
// fiber locals, so handlers and the audit log see the same value.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures each request has a stable request identifier for tracing and logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			c.Set(RequestIDHeader, reqID)
		}

		c.Locals(RequestIDHeader, reqID)

		return c.Next()
	}
}
