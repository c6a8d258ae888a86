package handlers

import (
	"log"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
)

type AuthBotHandlerInterface interface {
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

type AuthBotHandler struct {
	baseHandler
	flow businessflow.BotAuthFlow
}

func NewAuthBotHandler(flow businessflow.BotAuthFlow) AuthBotHandlerInterface {
	return &AuthBotHandler{baseHandler: newBaseHandler(), flow: flow}
}

// Login authenticates a bot and returns tokens
// @Summary Bot Login
// @Tags Bot Authentication
// @Accept json
// @Produce json
// @Param request body dto.BotLoginRequest true "Bot login"
// @Success 200 {object} dto.APIResponse{data=dto.BotLoginResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/bot/auth/login [post]
func (h *AuthBotHandler) Login(c fiber.Ctx) error {
	var req dto.BotLoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/auth/login", 30*time.Second)
	defer cancel()

	res, err := h.flow.Verify(ctx, &req, clientMetadata(c))
	if err != nil {
		log.Println("Bot login failed", err)
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Login failed", "BOT_LOGIN_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", res)
}

// Refresh exchanges a refresh token for a new token pair
// @Summary Bot Token Refresh
// @Tags Bot Authentication
// @Accept json
// @Produce json
// @Param request body dto.BotRefreshRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.BotLoginResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/bot/auth/refresh [post]
func (h *AuthBotHandler) Refresh(c fiber.Ctx) error {
	var req dto.BotRefreshRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/auth/refresh", 10*time.Second)
	defer cancel()

	res, err := h.flow.Refresh(ctx, &req)
	if err != nil {
		log.Println("Bot token refresh failed", err)
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Token refresh failed", "BOT_REFRESH_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Token refreshed", res)
}
