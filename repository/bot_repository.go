package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"gorm.io/gorm"
)

// BotRepositoryImpl implements BotRepository interface
type BotRepositoryImpl struct {
	*BaseRepository[models.Bot, models.BotFilter]
}

// NewBotRepository creates a new bot repository
func NewBotRepository(db *gorm.DB) BotRepository {
	return &BotRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Bot, models.BotFilter](db),
	}
}

// ByUUID retrieves a bot by UUID
func (r *BotRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Bot, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	bots, err := r.ByFilter(ctx, models.BotFilter{UUID: &parsedUUID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(bots) == 0 {
		return nil, nil
	}

	return bots[0], nil
}

// ByUsername retrieves a bot by username
func (r *BotRepositoryImpl) ByUsername(ctx context.Context, username string) (*models.Bot, error) {
	bots, err := r.ByFilter(ctx, models.BotFilter{Username: &username}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(bots) == 0 {
		return nil, nil
	}

	return bots[0], nil
}

// UpdateLastLogin stamps the bot's last successful login
func (r *BotRepositoryImpl) UpdateLastLogin(ctx context.Context, botID uint, at time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Bot{}).
			Where("id = ?", botID).
			Updates(map[string]any{"last_login_at": at, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to update bot last login: %w", res.Error)
		}
		return nil
	})
}

// applyFilter applies filter criteria to a GORM query
func (r *BotRepositoryImpl) applyFilter(query *gorm.DB, filter models.BotFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Username != nil {
		query = query.Where("username = ?", *filter.Username)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves bots based on filter criteria
func (r *BotRepositoryImpl) ByFilter(ctx context.Context, filter models.BotFilter, orderBy string, limit, offset int) ([]*models.Bot, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Bot{}), filter)

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

	var bots []*models.Bot
	if err := query.Find(&bots).Error; err != nil {
		return nil, err
	}

	return bots, nil
}

// Count returns the number of bots matching the filter
func (r *BotRepositoryImpl) Count(ctx context.Context, filter models.BotFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Bot{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any bot matching the filter exists
func (r *BotRepositoryImpl) Exists(ctx context.Context, filter models.BotFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
