package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
	"github.com/example/eventhub/internal/utils"
)

// AuthHandler issues access tokens.
type AuthHandler struct {
	store        store.Store
	jwtSecret    string
	tokenExpires time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(st store.Store, jwtSecret string, tokenExpires time.Duration) *AuthHandler {
	return &AuthHandler{store: st, jwtSecret: jwtSecret, tokenExpires: tokenExpires}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a bearer token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	ctx := c.UserContext()
	var user *models.User
	err := h.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		var err error
		user, err = uow.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.jwtSecret, user.ID, user.Role, h.tokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":        user.ID,
			"full_name": user.FullName,
			"email":     user.Email,
			"role":      user.Role,
		},
		"token": token,
	})
}
