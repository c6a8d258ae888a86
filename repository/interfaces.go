// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// Repository errors
var (
	// ErrClickNotConvertible is returned when a conversion write finds no clicked, unconverted row
	ErrClickNotConvertible = errors.New("click record is not convertible")
	// ErrOrderAlreadyCorrelated is returned when another click already holds the order id
	ErrOrderAlreadyCorrelated = errors.New("order already correlated to another click")
)

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ClickRecordRepository defines operations for tracked link clicks
type ClickRecordRepository interface {
	Repository[models.ClickRecord, models.ClickRecordFilter]
	ByClickID(ctx context.Context, clickID string) (*models.ClickRecord, error)
	ByCorrelatedOrderID(ctx context.Context, orderID string) (*models.ClickRecord, error)
	// ListConversionCandidates returns clicked, unconverted records with clicked_at in [since, until]
	ListConversionCandidates(ctx context.Context, since, until time.Time) ([]*models.ClickRecord, error)
	// MarkClicked sets the click fields only if the record has not been clicked yet.
	// It reports whether this call performed the transition.
	MarkClicked(ctx context.Context, clickID string, visit models.ClickVisit) (bool, error)
	// MarkConverted writes the conversion fields only if the record is clicked and not yet converted
	MarkConverted(ctx context.Context, clickID string, outcome models.ConversionOutcome) error
}

// CorrelationRunRepository defines operations for correlation run audit rows
type CorrelationRunRepository interface {
	Repository[models.CorrelationRun, models.CorrelationRunFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.CorrelationRun, error)
	Finish(ctx context.Context, run *models.CorrelationRun) error
}

// BotRepository defines operations for bots
type BotRepository interface {
	Repository[models.Bot, models.BotFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Bot, error)
	ByUsername(ctx context.Context, username string) (*models.Bot, error)
	UpdateLastLogin(ctx context.Context, botID uint, at time.Time) error
}
