package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/saeid-a/CoachOps/internal/logging"
)

// RequestLogger attaches a request-scoped logger to the user context and
// writes one access line per request. Mount it after requestid.New().
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)

		logger := base.With("request_id", requestID)
		c.SetUserContext(logging.ContextWithLogger(c.UserContext(), logger))

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app's error handler write the response before we log its status.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
			"user_id", c.Locals("user_id"),
		)
		return nil
	}
}
