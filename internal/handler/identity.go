package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
)

// Identity headers set by the trusted gateway in front of this service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleAdmin = "admin"

	identityLocalKey = "identity"
)

type Identity struct {
	UserID string
	Role   string
}

// RequireIdentity rejects requests without a caller id.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(HeaderUserID))
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing caller identity")
		}

		c.Locals(identityLocalKey, Identity{
			UserID: userID,
			Role:   strings.ToLower(strings.TrimSpace(c.Get(HeaderUserRole))),
		})
		return c.Next()
	}
}

// RequireRole only lets callers holding role through. It must run after
// RequireIdentity.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if callerIdentity(c).Role != role {
			return domain.ErrNotAuthorized
		}
		return c.Next()
	}
}

func callerIdentity(c *fiber.Ctx) Identity {
	identity, _ := c.Locals(identityLocalKey).(Identity)
	return identity
}

// requestContext carries the request correlation id into service calls.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
