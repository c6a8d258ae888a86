package handlers

import (
	"log"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CorrelationHandlerInterface defines the operator endpoints for correlation runs
type CorrelationHandlerInterface interface {
	Correlate(c fiber.Ctx) error
	ListRuns(c fiber.Ctx) error
}

type CorrelationHandler struct {
	baseHandler
	flow       businessflow.CorrelationFlow
	runTimeout time.Duration
}

// NewCorrelationHandler creates the handler. runTimeout bounds a synchronous run.
func NewCorrelationHandler(flow businessflow.CorrelationFlow, runTimeout time.Duration) CorrelationHandlerInterface {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &CorrelationHandler{baseHandler: newBaseHandler(), flow: flow, runTimeout: runTimeout}
}

// Correlate runs one correlation pass for a seller and returns its summary
// @Summary Run Correlation
// @Tags Correlation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CorrelateRequest true "Run parameters"
// @Success 200 {object} dto.APIResponse{data=dto.CorrelationSummaryResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/bot/correlations [post]
func (h *CorrelationHandler) Correlate(c fiber.Ctx) error {
	var req dto.CorrelateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/correlations", h.runTimeout+30*time.Second)
	defer cancel()

	res, err := h.flow.Run(ctx, &req)
	if err != nil {
		switch {
		case businessflow.IsCorrelationRunInProgress(err):
			return h.businessErrorResponse(c, fiber.StatusConflict, err)
		case businessflow.IsInvalidSellerID(err),
			businessflow.IsInvalidLookback(err),
			businessflow.IsInvalidOrderLimit(err),
			businessflow.IsOrderLimitTooLarge(err):
			return h.businessErrorResponse(c, fiber.StatusBadRequest, err)
		default:
			log.Println("Correlation run failed", err)
			return h.businessErrorResponse(c, fiber.StatusInternalServerError, err)
		}
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Correlation run finished", res)
}

// ListRuns lists past correlation runs, newest first
// @Summary List Correlation Runs
// @Tags Correlation
// @Produce json
// @Security BearerAuth
// @Param seller_id query string false "Seller ID"
// @Param limit query int false "Max rows"
// @Success 200 {object} dto.APIResponse{data=dto.ListCorrelationRunsResponse}
// @Router /api/v1/bot/correlations/runs [get]
func (h *CorrelationHandler) ListRuns(c fiber.Ctx) error {
	var req dto.ListCorrelationRunsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/correlations/runs", 10*time.Second)
	defer cancel()

	res, err := h.flow.ListRuns(ctx, &req)
	if err != nil {
		log.Println("List correlation runs failed", err)
		return h.businessErrorResponse(c, fiber.StatusInternalServerError, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Correlation runs retrieved", res)
}
