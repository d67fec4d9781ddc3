package middleware

import (
	"errors"

	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/gofiber/fiber/v2"
)

// ErrorStatus maps a domain error to its HTTP status and client message.
func ErrorStatus(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, errs.ErrMissingToken):
		return fiber.StatusUnauthorized, "missing token"
	case errors.Is(err, errs.ErrInvalidToken):
		return fiber.StatusForbidden, "invalid token"
	case errors.Is(err, errs.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

// WriteError renders err as {"error": msg}, plus per-field details for
// request validation failures.
func WriteError(c *fiber.Ctx, err error) error {
	status, msg := ErrorStatus(err)
	body := fiber.Map{"error": msg}
	var re *errs.RequestError
	if errors.As(err, &re) && len(re.Fields) > 0 {
		body["details"] = re.Fields
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is the fiber app error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return WriteError(c, err)
}
