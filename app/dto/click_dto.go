package dto

import "github.com/amirphl/orochi-attribution/models"

// RecordClickRequest registers a tracked link before it is shown to a chat user
type RecordClickRequest struct {
	UserID          string            `json:"userId" validate:"required,max=255"`
	OriginalURL     string            `json:"originalUrl" validate:"required,url,max=4096"`
	ItemID          *string           `json:"itemId,omitempty" validate:"omitempty,max=64"`
	ProductLabel    *string           `json:"productLabel,omitempty" validate:"omitempty,max=1000"`
	CampaignID      *string           `json:"campaignId,omitempty" validate:"omitempty,max=255"`
	AdID            *string           `json:"adId,omitempty" validate:"omitempty,max=255"`
	Channel         *string           `json:"channel,omitempty" validate:"omitempty,max=64"`
	CampaignContext map[string]string `json:"campaignContext,omitempty" validate:"omitempty,max=32,dive,keys,max=64,endkeys,max=1000"`
	CityHint        *string           `json:"cityHint,omitempty" validate:"omitempty,max=255"`
	RegionHint      *string           `json:"regionHint,omitempty" validate:"omitempty,max=255"`
}

// RecordClickResponse returns the shareable tracked link
type RecordClickResponse struct {
	ClickID    string  `json:"clickId"`
	TrackedURL string  `json:"trackedUrl"`
	ItemID     *string `json:"itemId,omitempty"`
}

// ClickRecordDTO is the support view of a click record
type ClickRecordDTO struct {
	ClickID            string                     `json:"click_id"`
	TrackedURL         string                     `json:"tracked_url"`
	Status             string                     `json:"status"`
	UserID             string                     `json:"user_id"`
	OriginalURL        string                     `json:"original_url"`
	ItemID             *string                    `json:"item_id,omitempty"`
	ProductLabel       *string                    `json:"product_label,omitempty"`
	CampaignID         *string                    `json:"campaign_id,omitempty"`
	AdID               *string                    `json:"ad_id,omitempty"`
	Channel            *string                    `json:"channel,omitempty"`
	CampaignContext    map[string]string          `json:"campaign_context,omitempty"`
	CityHint           *string                    `json:"city_hint,omitempty"`
	RegionHint         *string                    `json:"region_hint,omitempty"`
	Clicked            bool                       `json:"clicked"`
	ClickedAt          *string                    `json:"clicked_at,omitempty"`
	Converted          bool                       `json:"converted"`
	ConvertedAt        *string                    `json:"converted_at,omitempty"`
	CorrelatedOrderID  *string                    `json:"correlated_order_id,omitempty"`
	ConfidenceTier     *string                    `json:"confidence_tier,omitempty"`
	MatchMethod        *string                    `json:"match_method,omitempty"`
	MatchScore         *int                       `json:"match_score,omitempty"`
	MatchDetails       *models.MatchDetails       `json:"match_details,omitempty"`
	ConversionSnapshot *models.ConversionSnapshot `json:"conversion_snapshot,omitempty"`
	CorrelationRunID   *string                    `json:"correlation_run_id,omitempty"`
	CreatedAt          string                     `json:"created_at"`
}
