package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"gorm.io/gorm"
)

// ClickRecordRepositoryImpl implements ClickRecordRepository interface
type ClickRecordRepositoryImpl struct {
	*BaseRepository[models.ClickRecord, models.ClickRecordFilter]
}

// NewClickRecordRepository creates a new click record repository
func NewClickRecordRepository(db *gorm.DB) ClickRecordRepository {
	return &ClickRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ClickRecord, models.ClickRecordFilter](db),
	}
}

// ByClickID retrieves a click record by its public click id
func (r *ClickRecordRepositoryImpl) ByClickID(ctx context.Context, clickID string) (*models.ClickRecord, error) {
	rows, err := r.ByFilter(ctx, models.ClickRecordFilter{ClickID: &clickID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByCorrelatedOrderID retrieves the click already attributed to an order, if any
func (r *ClickRecordRepositoryImpl) ByCorrelatedOrderID(ctx context.Context, orderID string) (*models.ClickRecord, error) {
	rows, err := r.ByFilter(ctx, models.ClickRecordFilter{CorrelatedOrderID: &orderID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListConversionCandidates returns clicked, unconverted records clicked inside [since, until]
func (r *ClickRecordRepositoryImpl) ListConversionCandidates(ctx context.Context, since, until time.Time) ([]*models.ClickRecord, error) {
	since, until = since.UTC(), until.UTC()
	filter := models.ClickRecordFilter{
		Clicked:       utils.ToPtr(true),
		Converted:     utils.ToPtr(false),
		ClickedAfter:  &since,
		ClickedBefore: &until,
	}
	rows, err := r.ByFilter(ctx, filter, "clicked_at DESC, click_id ASC", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion candidates: %w", err)
	}
	return rows, nil
}

// MarkClicked performs the pending -> clicked transition. Only the first caller wins.
func (r *ClickRecordRepositoryImpl) MarkClicked(ctx context.Context, clickID string, visit models.ClickVisit) (bool, error) {
	at := visit.At.UTC()
	var won bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.ClickRecord{}).
			Where("click_id = ? AND clicked = ?", clickID, false).
			Updates(map[string]any{
				"clicked":          true,
				"clicked_at":       at,
				"click_user_agent": utils.NilIfEmpty(visit.UserAgent),
				"click_ip":         utils.NilIfEmpty(visit.IP),
				"updated_at":       at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark click %s as clicked: %w", clickID, res.Error)
		}
		won = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// MarkConverted performs the clicked -> converted transition.
// Converted rows are never touched again.
func (r *ClickRecordRepositoryImpl) MarkConverted(ctx context.Context, clickID string, outcome models.ConversionOutcome) error {
	at := outcome.ConvertedAt.UTC()
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.ClickRecord{}).
			Where("click_id = ? AND clicked = ? AND converted = ? AND correlated_order_id IS NULL", clickID, true, false).
			Updates(map[string]any{
				"converted":           true,
				"converted_at":        at,
				"correlated_order_id": outcome.OrderID,
				"confidence_tier":     outcome.ConfidenceTier,
				"match_method":        outcome.MatchMethod,
				"match_score":         outcome.MatchScore,
				"match_details":       outcome.MatchDetails,
				"conversion_snapshot": outcome.Snapshot,
				"correlation_run_id":  outcome.CorrelationRunID,
				"updated_at":          at,
			})
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return fmt.Errorf("order %s: %w", outcome.OrderID, ErrOrderAlreadyCorrelated)
			}
			return fmt.Errorf("failed to mark click %s as converted: %w", clickID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("click %s: %w", clickID, ErrClickNotConvertible)
		}
		return nil
	})
}

// applyFilter applies filter criteria to a GORM query
func (r *ClickRecordRepositoryImpl) applyFilter(query *gorm.DB, filter models.ClickRecordFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ClickID != nil {
		query = query.Where("click_id = ?", *filter.ClickID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Clicked != nil {
		query = query.Where("clicked = ?", *filter.Clicked)
	}
	if filter.Converted != nil {
		query = query.Where("converted = ?", *filter.Converted)
	}
	if filter.CorrelatedOrderID != nil {
		query = query.Where("correlated_order_id = ?", *filter.CorrelatedOrderID)
	}
	if filter.ConfidenceTier != nil {
		query = query.Where("confidence_tier = ?", string(*filter.ConfidenceTier))
	}
	if filter.CorrelationRunID != nil {
		query = query.Where("correlation_run_id = ?", *filter.CorrelationRunID)
	}
	if filter.ClickedAfter != nil {
		query = query.Where("clicked_at >= ?", filter.ClickedAfter.UTC())
	}
	if filter.ClickedBefore != nil {
		query = query.Where("clicked_at <= ?", filter.ClickedBefore.UTC())
	}
	if filter.ConvertedAfter != nil {
		query = query.Where("converted_at >= ?", filter.ConvertedAfter.UTC())
	}
	if filter.ConvertedBefore != nil {
		query = query.Where("converted_at <= ?", filter.ConvertedBefore.UTC())
	}
	return query
}

// ByFilter retrieves click records based on filter criteria
func (r *ClickRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.ClickRecordFilter, orderBy string, limit, offset int) ([]*models.ClickRecord, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.ClickRecord{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.ClickRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

// Count returns the number of click records matching the filter
func (r *ClickRecordRepositoryImpl) Count(ctx context.Context, filter models.ClickRecordFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.ClickRecord{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any click record matching the filter exists
func (r *ClickRecordRepositoryImpl) Exists(ctx context.Context, filter models.ClickRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
