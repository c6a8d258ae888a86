// Package models contains domain entities for click tracking and order attribution
package models

import (
	"time"

	"github.com/google/uuid"
)

// CorrelationRunStatus is the state of a batch correlation pass
type CorrelationRunStatus string

const (
	CorrelationRunStatusRunning   CorrelationRunStatus = "running"
	CorrelationRunStatusCompleted CorrelationRunStatus = "completed"
	CorrelationRunStatusFailed    CorrelationRunStatus = "failed"
)

// CorrelationRun is the audit row written for every batch pass
type CorrelationRun struct {
	ID                   uint                 `gorm:"primaryKey" json:"id"`
	UUID                 uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:uk_correlation_runs_uuid" json:"uuid"`
	SellerID             string               `gorm:"size:64;not null;index:idx_correlation_runs_seller_id" json:"seller_id"`
	DryRun               bool                 `gorm:"not null;default:false" json:"dry_run"`
	LookbackHours        int                  `gorm:"not null" json:"lookback_hours"`
	OrderLimit           int                  `gorm:"not null" json:"order_limit"`
	Status               CorrelationRunStatus `gorm:"size:16;not null;index:idx_correlation_runs_status" json:"status"`
	OrdersProcessed      int                  `gorm:"not null;default:0" json:"orders_processed"`
	OrdersWithCandidates int                  `gorm:"not null;default:0" json:"orders_with_candidates"`
	Correlated           int                  `gorm:"not null;default:0" json:"correlated"`
	AlreadyCorrelated    int                  `gorm:"not null;default:0" json:"already_correlated"`
	NoMatch              int                  `gorm:"not null;default:0" json:"no_match"`
	Errors               int                  `gorm:"not null;default:0" json:"errors"`
	FailureReason        *string              `gorm:"type:text" json:"failure_reason,omitempty"`
	StartedAt            time.Time            `gorm:"not null;index:idx_correlation_runs_started_at" json:"started_at"`
	FinishedAt           *time.Time           `json:"finished_at,omitempty"`
}

// TableName returns the table name for CorrelationRun
func (CorrelationRun) TableName() string { return "correlation_runs" }

// CorrelationRunFilter represents filter criteria for correlation run queries
type CorrelationRunFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	SellerID      *string
	Status        *CorrelationRunStatus
	DryRun        *bool
	StartedAfter  *time.Time
	StartedBefore *time.Time
}
