package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/xuri/excelize/v2"
)

const (
	conversionSheetName  = "conversions"
	maxReportRange       = 93 * 24 * time.Hour
	maxReportRows        = 100000
	reportQueryPageLimit = 5000
)

var conversionReportHeader = []string{
	"click_id", "user_id", "campaign_id", "ad_id", "channel", "item_id", "product_label",
	"clicked_at", "converted_at", "order_id", "confidence_tier", "match_method", "match_score",
	"elapsed_hours", "order_status", "paid_amount", "currency", "item_title", "item_quantity",
	"shipping_city", "shipping_region", "correlation_run_id",
}

// ConversionReportFlow exports converted clicks for operators
type ConversionReportFlow interface {
	ExportConversions(ctx context.Context, req *dto.ExportConversionsRequest) (*dto.ExportConversionsResponse, error)
}

type ConversionReportFlowImpl struct {
	clickRepo repository.ClickRecordRepository
}

func NewConversionReportFlow(clickRepo repository.ClickRecordRepository) ConversionReportFlow {
	return &ConversionReportFlowImpl{clickRepo: clickRepo}
}

func (f *ConversionReportFlowImpl) ExportConversions(ctx context.Context, req *dto.ExportConversionsRequest) (*dto.ExportConversionsResponse, error) {
	if req == nil {
		return nil, NewBusinessError("VALIDATION_ERROR", "Report range is required", ErrStartDateAfterEndDate)
	}
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(req.From))
	if err != nil {
		return nil, NewBusinessError("VALIDATION_ERROR", "from must be an RFC3339 timestamp", err)
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(req.To))
	if err != nil {
		return nil, NewBusinessError("VALIDATION_ERROR", "to must be an RFC3339 timestamp", err)
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, NewBusinessError("START_DATE_AFTER_END_DATE", "from must be before to", ErrStartDateAfterEndDate)
	}
	if to.Sub(from) > maxReportRange {
		return nil, NewBusinessError("REPORT_RANGE_TOO_LARGE", "Report range must not exceed 93 days", ErrReportRangeTooLarge)
	}

	rows, err := f.loadConversions(ctx, from, to, req.MinTier)
	if err != nil {
		return nil, NewBusinessError("FETCH_CONVERSIONS_FAILED", "Failed to fetch conversions", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	xl.SetSheetName(xl.GetSheetName(0), conversionSheetName)
	if err := xl.SetSheetRow(conversionSheetName, "A1", &conversionReportHeader); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}
	for i, r := range rows {
		record := conversionRecord(r)
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(conversionSheetName, cellRef, &record); err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}
	_ = xl.SetPanes(conversionSheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("conversions_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	return &dto.ExportConversionsResponse{Filename: filename, Data: buf.Bytes(), Rows: len(rows)}, nil
}

func (f *ConversionReportFlowImpl) loadConversions(ctx context.Context, from, to time.Time, minTier *string) ([]*models.ClickRecord, error) {
	filter := models.ClickRecordFilter{
		Converted:       utils.ToPtr(true),
		ConvertedAfter:  &from,
		ConvertedBefore: &to,
	}

	var out []*models.ClickRecord
	for offset := 0; offset < maxReportRows; offset += reportQueryPageLimit {
		page, err := f.clickRepo.ByFilter(ctx, filter, "converted_at ASC, id ASC", reportQueryPageLimit, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			if tierAllowed(r.ConfidenceTier, minTier) {
				out = append(out, r)
			}
		}
		if len(page) < reportQueryPageLimit {
			break
		}
	}
	return out, nil
}

func tierAllowed(tier *models.ConfidenceTier, minTier *string) bool {
	if minTier == nil {
		return true
	}
	rank := map[models.ConfidenceTier]int{
		models.ConfidenceLow:    1,
		models.ConfidenceMedium: 2,
		models.ConfidenceHigh:   3,
	}
	if tier == nil {
		return false
	}
	return rank[*tier] >= rank[models.ConfidenceTier(*minTier)]
}

func conversionRecord(r *models.ClickRecord) []string {
	record := []string{
		r.ClickID,
		r.UserID,
		utils.StringOrEmpty(r.CampaignID),
		utils.StringOrEmpty(r.AdID),
		utils.StringOrEmpty(r.Channel),
		utils.StringOrEmpty(r.ItemID),
		utils.StringOrEmpty(r.ProductLabel),
		formatTime(r.ClickedAt),
		formatTime(r.ConvertedAt),
		utils.StringOrEmpty(r.CorrelatedOrderID),
		"", "", "", "", "", "", "", "", "", "", "", "",
	}
	if r.ConfidenceTier != nil {
		record[10] = r.ConfidenceTier.String()
	}
	if r.MatchMethod != nil {
		record[11] = r.MatchMethod.String()
	}
	if r.MatchScore != nil {
		record[12] = fmt.Sprintf("%d", *r.MatchScore)
	}
	if r.MatchDetails != nil {
		record[13] = fmt.Sprintf("%.2f", r.MatchDetails.ElapsedHours)
	}
	if s := r.ConversionSnapshot; s != nil {
		record[14] = s.Status
		record[15] = s.PaidAmount.StringFixed(2)
		record[16] = s.Currency
		record[17] = s.ItemTitle
		record[18] = fmt.Sprintf("%d", s.ItemQuantity)
		record[19] = s.ShippingCity
		record[20] = s.ShippingRegion
	}
	if r.CorrelationRunID != nil {
		record[21] = r.CorrelationRunID.String()
	}
	return record
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
