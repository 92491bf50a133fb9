package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/eventhub/internal/services"
)

// serviceError maps business errors to HTTP errors. Anything unrecognised is
// returned as-is and rendered as a 500 by ErrorHandler.
func serviceError(err error) error {
	var svcErr *services.Error
	message := err.Error()
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, message)
	case errors.Is(err, services.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, message)
	case errors.Is(err, services.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, message)
	case errors.Is(err, services.ErrInvalidStateTransition),
		errors.Is(err, services.ErrInsufficientInventory):
		return fiber.NewError(fiber.StatusConflict, message)
	case errors.Is(err, services.ErrDiscountInvalid),
		errors.Is(err, services.ErrDeadlinePassed),
		errors.Is(err, services.ErrEventUnavailable):
		return fiber.NewError(fiber.StatusUnprocessableEntity, message)
	}
	return err
}

// ErrorHandler renders every error as {"success": false, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		log.Printf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
