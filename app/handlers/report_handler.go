package handlers

import (
	"log"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandlerInterface defines the conversion report download
type ReportHandlerInterface interface {
	ExportConversions(c fiber.Ctx) error
}

type ReportHandler struct {
	baseHandler
	flow businessflow.ConversionReportFlow
}

func NewReportHandler(flow businessflow.ConversionReportFlow) ReportHandlerInterface {
	return &ReportHandler{baseHandler: newBaseHandler(), flow: flow}
}

// ExportConversions downloads converted clicks as an Excel workbook
// @Summary Export Conversions
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param from query string true "RFC3339 start"
// @Param to query string true "RFC3339 end"
// @Param min_tier query string false "Lowest confidence tier"
// @Success 200 {file} file
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/bot/reports/conversions [get]
func (h *ReportHandler) ExportConversions(c fiber.Ctx) error {
	var req dto.ExportConversionsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := h.validate(c, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/bot/reports/conversions", 2*time.Minute)
	defer cancel()

	res, err := h.flow.ExportConversions(ctx, &req)
	if err != nil {
		if businessflow.IsValidationError(err) ||
			businessflow.IsStartDateAfterEndDate(err) ||
			businessflow.IsReportRangeTooLarge(err) {
			return h.businessErrorResponse(c, fiber.StatusBadRequest, err)
		}
		log.Println("Export conversions failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate report", "DOWNLOAD_FAILED", nil)
	}

	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+res.Filename)
	return c.Send(res.Data)
}
