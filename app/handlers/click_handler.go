package handlers

import (
	"log"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ClickHandlerInterface defines the bot endpoints for tracked links
type ClickHandlerInterface interface {
	Record(c fiber.Ctx) error
	Get(c fiber.Ctx) error
}

type ClickHandler struct {
	baseHandler
	flow businessflow.ClickRecordFlow
}

func NewClickHandler(flow businessflow.ClickRecordFlow) ClickHandlerInterface {
	return &ClickHandler{baseHandler: newBaseHandler(), flow: flow}
}

// Record registers a tracked link before it is sent to a chat user
// @Summary Record Click
// @Tags Tracking
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RecordClickRequest true "Tracked link"
// @Success 201 {object} dto.APIResponse{data=dto.RecordClickResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/bot/clicks [post]
func (h *ClickHandler) Record(c fiber.Ctx) error {
	var req dto.RecordClickRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/clicks", 10*time.Second)
	defer cancel()

	res, err := h.flow.Record(ctx, &req)
	if err != nil {
		switch {
		case businessflow.IsUserIDRequired(err), businessflow.IsInvalidDestinationURL(err):
			return h.businessErrorResponse(c, fiber.StatusBadRequest, err)
		case businessflow.IsClickStoreNotAvailable(err):
			log.Println("Record click failed", err)
			return h.businessErrorResponse(c, fiber.StatusServiceUnavailable, err)
		default:
			log.Println("Record click failed", err)
			return h.businessErrorResponse(c, fiber.StatusInternalServerError, err)
		}
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Click recorded", res)
}

// Get returns the support view of a tracked link
// @Summary Get Click
// @Tags Tracking
// @Produce json
// @Security BearerAuth
// @Param clickId path string true "Click ID"
// @Success 200 {object} dto.APIResponse{data=dto.ClickRecordDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/bot/clicks/{clickId} [get]
func (h *ClickHandler) Get(c fiber.Ctx) error {
	clickID := c.Params("clickId")

	ctx, cancel := createRequestContext(c, "/api/v1/bot/clicks/"+clickID, 10*time.Second)
	defer cancel()

	res, err := h.flow.GetClick(ctx, clickID)
	if err != nil {
		switch {
		case businessflow.IsClickNotFound(err):
			return h.businessErrorResponse(c, fiber.StatusNotFound, err)
		case businessflow.IsClickIDRequired(err):
			return h.businessErrorResponse(c, fiber.StatusBadRequest, err)
		default:
			log.Println("Get click failed", err)
			return h.businessErrorResponse(c, fiber.StatusInternalServerError, err)
		}
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Click retrieved", res)
}
