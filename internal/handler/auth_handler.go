package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/internal/utils"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register mounts the public auth routes. limit guards login against credential stuffing.
func (h *AuthHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Post("/register", limit, h.register)
	router.Post("/login", limit, h.login)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Register(c.UserContext(), payload)
	if err != nil {
		return respondError(c, *requestLogger(h.logger, c), err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", resp)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Login(c.UserContext(), payload)
	if err != nil {
		return respondError(c, *requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "login successful", resp)
}
