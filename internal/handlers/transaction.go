package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/eventhub/internal/middleware"
	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/services"
	"github.com/example/eventhub/internal/utils"
)

// MaxProofSize caps payment proof uploads.
const MaxProofSize = 5 << 20

// TransactionHandler serves buyer and organizer transaction endpoints.
type TransactionHandler struct {
	transactions *services.TransactionService
}

// NewTransactionHandler constructs TransactionHandler.
func NewTransactionHandler(transactions *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

type transactionItemRequest struct {
	TicketTierID string `json:"ticket_tier_id"`
	Quantity     int    `json:"quantity"`
}

type createTransactionRequest struct {
	EventID        string                   `json:"event_id"`
	Items          []transactionItemRequest `json:"items"`
	UsePoints      bool                     `json:"use_points"`
	UserCouponID   string                   `json:"user_coupon_id"`
	EventVoucherID string                   `json:"event_voucher_id"`
}

// Create places an order for tickets.
func (h *TransactionHandler) Create(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event id")
	}

	input := services.CreateTransactionInput{
		EventID:   eventID,
		UsePoints: req.UsePoints,
	}
	for _, item := range req.Items {
		tierID, err := uuid.Parse(item.TicketTierID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid ticket tier id")
		}
		input.Items = append(input.Items, services.CreateItemInput{TicketTierID: tierID, Quantity: item.Quantity})
	}
	if input.UserCouponID, err = optionalUUID(req.UserCouponID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid coupon id")
	}
	if input.EventVoucherID, err = optionalUUID(req.EventVoucherID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid voucher id")
	}

	txn, err := h.transactions.Create(c.UserContext(), userID, input)
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

// List returns the buyer's transactions.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	input, err := listInput(c)
	if err != nil {
		return err
	}

	page, err := h.transactions.ListForCustomer(c.UserContext(), userID, input)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       page.Transactions,
		"pagination": page.Pagination,
	})
}

// Get returns one of the buyer's transactions.
func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.transactions.GetForCustomer(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

// UploadProof accepts the payment proof as multipart field payment_proof.
func (h *TransactionHandler) UploadProof(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	header, err := c.FormFile("payment_proof")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "payment_proof file is required")
	}
	if header.Size > MaxProofSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "payment proof is too large")
	}

	file, err := header.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read payment proof")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxProofSize))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read payment proof")
	}

	txn, err := h.transactions.UploadProof(c.UserContext(), userID, id, data)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

// Cancel abandons an unpaid transaction.
func (h *TransactionHandler) Cancel(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.transactions.Cancel(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

func listInput(c *fiber.Ctx) (services.ListTransactionsInput, error) {
	pagination := utils.ParsePagination(c)
	input := services.ListTransactionsInput{
		Status: models.PaymentStatus(c.Query("status")),
		Page:   pagination.Page,
		Limit:  pagination.Limit,
	}
	if raw := c.Query("event_id"); raw != "" {
		eventID, err := uuid.Parse(raw)
		if err != nil {
			return input, fiber.NewError(fiber.StatusBadRequest, "invalid event id")
		}
		input.EventID = eventID
	}
	return input, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
