package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/eventhub/internal/middleware"
)

// OrganizerList returns transactions for the organizer's events.
func (h *TransactionHandler) OrganizerList(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	input, err := listInput(c)
	if err != nil {
		return err
	}

	page, err := h.transactions.ListForOrganizer(c.UserContext(), userID, input)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       page.Transactions,
		"pagination": page.Pagination,
	})
}

// OrganizerGet returns one transaction of the organizer's events.
func (h *TransactionHandler) OrganizerGet(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.transactions.GetForOrganizer(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

// Accept confirms a paid transaction.
func (h *TransactionHandler) Accept(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.transactions.Accept(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "transaction accepted",
		"data":    txn,
	})
}

// Reject refuses a transaction and releases its tickets and discounts.
func (h *TransactionHandler) Reject(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.transactions.Reject(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "transaction rejected",
		"data":    txn,
	})
}
