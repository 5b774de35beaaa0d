package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/logging"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/services"
)

const (
	codeInternal     = "INTERNAL"
	codeUnauthorized = "UNAUTHORIZED"
	codeBadRequest   = "BAD_REQUEST"
)

var errMissingIdentity = errors.New("missing caller identity")

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respondError(c *fiber.Ctx, status int, code, message string, details map[string]any) error {
	return c.Status(status).JSON(errorResponse{Code: code, Message: message, Details: details})
}

func badRequest(c *fiber.Ctx, message string, details map[string]any) error {
	return respondError(c, fiber.StatusBadRequest, codeBadRequest, message, details)
}

// mapServiceError renders business errors as {code, message, details}.
// Anything else is logged and reported without internals.
func mapServiceError(c *fiber.Ctx, err error) error {
	var serviceErr *services.Error
	if errors.As(err, &serviceErr) {
		status := fiber.StatusInternalServerError
		switch serviceErr.Kind {
		case services.KindValidation:
			status = fiber.StatusBadRequest
		case services.KindNotFound:
			status = fiber.StatusNotFound
		case services.KindConflict:
			status = fiber.StatusConflict
		case services.KindForbidden:
			status = fiber.StatusForbidden
		}
		return respondError(c, status, serviceErr.Code, serviceErr.Message, serviceErr.Details)
	}

	logging.FromContext(c.UserContext()).ErrorContext(c.UserContext(), "request failed",
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)
	return respondError(c, fiber.StatusInternalServerError, codeInternal, "Failed to process request", nil)
}

// actorFromLocals reads the identity placed by the auth middleware.
func actorFromLocals(c *fiber.Ctx) (models.Actor, error) {
	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	organizationID, _ := c.Locals("organization_id").(string)
	if userID == "" || role == "" || organizationID == "" {
		return models.Actor{}, errMissingIdentity
	}
	return models.Actor{ID: userID, Role: role, OrganizationID: organizationID}, nil
}

func unauthorized(c *fiber.Ctx) error {
	return respondError(c, fiber.StatusUnauthorized, codeUnauthorized, "Invalid token", nil)
}
