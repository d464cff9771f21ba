package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/autoeval-api/internal/observability"
)

const (
	// HeaderCorrelationID carries the correlation id in requests and responses.
	HeaderCorrelationID = "X-Correlation-ID"
	// LocalCorrelationID is the Locals key holding the request correlation id.
	LocalCorrelationID = "correlation_id"

	maxCorrelationIDLength = 128
)

// CorrelationID accepts a caller supplied X-Correlation-ID (or X-Request-ID) when it is
// well formed and otherwise mints one. The id is echoed back and placed on the user
// context so grading logs and events can be tied to the request.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderCorrelationID)
		if !validCorrelationID(id) {
			id = c.Get(fiber.HeaderXRequestID)
		}
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Locals(LocalCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))

		return c.Next()
	}
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(LocalCorrelationID).(string); ok {
		return id
	}
	return observability.CorrelationID(c.UserContext())
}

// validCorrelationID rejects ids that would be unsafe to echo into logs and headers.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
