package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CorrelationRunRepositoryImpl implements CorrelationRunRepository interface
type CorrelationRunRepositoryImpl struct {
	*BaseRepository[models.CorrelationRun, models.CorrelationRunFilter]
}

// NewCorrelationRunRepository creates a new correlation run repository
func NewCorrelationRunRepository(db *gorm.DB) CorrelationRunRepository {
	return &CorrelationRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CorrelationRun, models.CorrelationRunFilter](db),
	}
}

// ByUUID retrieves a run by its public id
func (r *CorrelationRunRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.CorrelationRun, error) {
	rows, err := r.ByFilter(ctx, models.CorrelationRunFilter{UUID: &id}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Finish stores the final counters and status of a run
func (r *CorrelationRunRepositoryImpl) Finish(ctx context.Context, run *models.CorrelationRun) error {
	if run == nil || run.ID == 0 {
		return errors.New("correlation run ID is required for finish")
	}

	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.CorrelationRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]any{
				"status":                 run.Status,
				"orders_processed":       run.OrdersProcessed,
				"orders_with_candidates": run.OrdersWithCandidates,
				"correlated":             run.Correlated,
				"already_correlated":     run.AlreadyCorrelated,
				"no_match":               run.NoMatch,
				"errors":                 run.Errors,
				"failure_reason":         run.FailureReason,
				"finished_at":            run.FinishedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to finish correlation run %d: %w", run.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("correlation run not found with ID: %d", run.ID)
		}
		return nil
	})
}

// applyFilter applies filter criteria to a GORM query
func (r *CorrelationRunRepositoryImpl) applyFilter(query *gorm.DB, filter models.CorrelationRunFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.DryRun != nil {
		query = query.Where("dry_run = ?", *filter.DryRun)
	}
	if filter.StartedAfter != nil {
		query = query.Where("started_at >= ?", filter.StartedAfter.UTC())
	}
	if filter.StartedBefore != nil {
		query = query.Where("started_at <= ?", filter.StartedBefore.UTC())
	}
	return query
}

// ByFilter retrieves runs based on filter criteria
func (r *CorrelationRunRepositoryImpl) ByFilter(ctx context.Context, filter models.CorrelationRunFilter, orderBy string, limit, offset int) ([]*models.CorrelationRun, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.CorrelationRun{}), filter)

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

	var rows []*models.CorrelationRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of runs matching the filter
func (r *CorrelationRunRepositoryImpl) Count(ctx context.Context, filter models.CorrelationRunFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.CorrelationRun{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any run matching the filter exists
func (r *CorrelationRunRepositoryImpl) Exists(ctx context.Context, filter models.CorrelationRunFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
