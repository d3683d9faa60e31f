package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"nms-backend/internal/engine"
	"nms-backend/internal/migration"
)

// ErrorHandler renders errors that escaped a handler. Domain errors keep
// their status and code; anything else is logged and hidden behind a 500.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		if appErr, ok := engine.AsAppError(err); ok {
			return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
		}

		if code == fiber.StatusInternalServerError {
			log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "request_id", requestID(c), "error", err)
			return c.Status(code).JSON(engine.ErrorResponse{
				Error: &engine.AppError{
					Code:    "INTERNAL_ERROR",
					Message: "Internal server error",
				},
			})
		}
		return c.Status(code).JSON(engine.ErrorResponse{
			Error: &engine.AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}
}

// respond writes domain errors as {key: message} with the error's status,
// the payload shape the table and form clients expect. Other errors go to
// ErrorHandler.
func respond(c *fiber.Ctx, key string, err error) error {
	if appErr, ok := engine.AsAppError(err); ok {
		return c.Status(appErr.Status).JSON(fiber.Map{key: appErr.Message})
	}
	if errors.Is(err, migration.ErrInvalidName) || errors.Is(err, migration.ErrNoTypes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{key: err.Error()})
	}
	return err
}

// filterError answers read endpoints with {"error": message}.
func filterError(c *fiber.Ctx, err error) error { return respond(c, "error", err) }

// alert answers mutation endpoints with {"alert": message}.
func alert(c *fiber.Ctx, err error) error { return respond(c, "alert", err) }

func invalidPayload() *engine.AppError {
	return engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
}
