// Package models contains domain entities for click tracking and order attribution
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClickStatus is the lifecycle state of a tracked link
type ClickStatus string

const (
	ClickStatusPending   ClickStatus = "pending"
	ClickStatusClicked   ClickStatus = "clicked"
	ClickStatusConverted ClickStatus = "converted"
)

// ConfidenceTier grades how trustworthy a click-to-order match is
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// String returns the string representation of the tier
func (t ConfidenceTier) String() string {
	return string(t)
}

// Valid checks if the tier is one of the known values
func (t ConfidenceTier) Valid() bool {
	switch t {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ConfidenceTier
func (t *ConfidenceTier) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = ConfidenceTier(v)
	case []byte:
		*t = ConfidenceTier(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ConfidenceTier", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ConfidenceTier
func (t ConfidenceTier) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid ConfidenceTier: %s", t)
	}
	return string(t), nil
}

// MatchMethod names the heuristic that produced a match
type MatchMethod string

const (
	MatchMethodItem     MatchMethod = "item_match"
	MatchMethodLocation MatchMethod = "location_match"
	MatchMethodProduct  MatchMethod = "product_match"
)

func (m MatchMethod) String() string {
	return string(m)
}

func (m MatchMethod) Valid() bool {
	switch m {
	case MatchMethodItem, MatchMethodLocation, MatchMethodProduct:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MatchMethod
func (m *MatchMethod) Scan(value any) error {
	if value == nil {
		*m = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*m = MatchMethod(v)
	case []byte:
		*m = MatchMethod(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MatchMethod", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MatchMethod
func (m MatchMethod) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid MatchMethod: %s", m)
	}
	return string(m), nil
}

// CampaignContext carries opaque attribution keys supplied by the chat pipeline
type CampaignContext map[string]string

// Value implements the driver.Valuer interface for CampaignContext
func (c CampaignContext) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for CampaignContext
func (c *CampaignContext) Scan(value any) error {
	if value == nil {
		*c = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignContext", value)
	}

	return json.Unmarshal(bytes, c)
}

// MatchDetails is the scoring breakdown stored alongside a conversion
type MatchDetails struct {
	ItemMatch      bool    `json:"item_match"`
	MatchedItemID  string  `json:"matched_item_id,omitempty"`
	CityMatched    bool    `json:"city_matched"`
	RegionMatched  bool    `json:"region_matched"`
	ProductMatched bool    `json:"product_matched"`
	ElapsedHours   float64 `json:"elapsed_hours"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	ItemPoints     int     `json:"item_points"`
	LocationPoints int     `json:"location_points"`
	ProductPoints  int     `json:"product_points"`
	TimeBonus      int     `json:"time_bonus"`
	Total          int     `json:"total"`
}

// Value implements the driver.Valuer interface for MatchDetails
func (d MatchDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for MatchDetails
func (d *MatchDetails) Scan(value any) error {
	if value == nil {
		*d = MatchDetails{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MatchDetails", value)
	}

	return json.Unmarshal(bytes, d)
}

// ConversionSnapshot is the fixed subset of an order captured at conversion time.
// It never stores the raw provider payload.
type ConversionSnapshot struct {
	OrderID            string          `json:"order_id"`
	Status             string          `json:"status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	Currency           string          `json:"currency"`
	ItemID             string          `json:"item_id,omitempty"`
	ItemTitle          string          `json:"item_title,omitempty"`
	ItemQuantity       int             `json:"item_quantity"`
	BuyerID            string          `json:"buyer_id,omitempty"`
	BuyerNickname      string          `json:"buyer_nickname,omitempty"`
	ShippingCity       string          `json:"shipping_city,omitempty"`
	ShippingRegion     string          `json:"shipping_region,omitempty"`
	ShippingPostalCode string          `json:"shipping_postal_code,omitempty"`
	OrderCreatedAt     time.Time       `json:"order_created_at"`
	CapturedAt         time.Time       `json:"captured_at"`
}

// Value implements the driver.Valuer interface for ConversionSnapshot
func (s ConversionSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for ConversionSnapshot
func (s *ConversionSnapshot) Scan(value any) error {
	if value == nil {
		*s = ConversionSnapshot{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ConversionSnapshot", value)
	}

	return json.Unmarshal(bytes, s)
}

// ClickRecord is one tracked outbound link handed to a chat user.
// Clicked and converted fields are written once and never cleared.
type ClickRecord struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ClickID         string          `gorm:"size:32;not null;uniqueIndex:uk_click_records_click_id" json:"click_id"`
	UserID          string          `gorm:"size:255;not null;index:idx_click_records_user_id" json:"user_id"`
	OriginalURL     string          `gorm:"type:text;not null" json:"original_url"`
	ItemID          *string         `gorm:"size:64;index:idx_click_records_item_id" json:"item_id,omitempty"`
	ProductLabel    *string         `gorm:"type:text" json:"product_label,omitempty"`
	CampaignID      *string         `gorm:"size:255;index:idx_click_records_campaign_id" json:"campaign_id,omitempty"`
	AdID            *string         `gorm:"size:255" json:"ad_id,omitempty"`
	Channel         *string         `gorm:"size:64" json:"channel,omitempty"`
	CampaignContext CampaignContext `gorm:"type:jsonb" json:"campaign_context,omitempty"`
	CityHint        *string         `gorm:"size:255" json:"city_hint,omitempty"`
	RegionHint      *string         `gorm:"size:255" json:"region_hint,omitempty"`

	Clicked        bool       `gorm:"not null;default:false;index:idx_click_records_clicked" json:"clicked"`
	ClickedAt      *time.Time `gorm:"index:idx_click_records_clicked_at" json:"clicked_at,omitempty"`
	ClickUserAgent *string    `gorm:"type:text" json:"click_user_agent,omitempty"`
	ClickIP        *string    `gorm:"size:64" json:"click_ip,omitempty"`

	Converted          bool                `gorm:"not null;default:false;index:idx_click_records_converted" json:"converted"`
	ConvertedAt        *time.Time          `gorm:"index:idx_click_records_converted_at" json:"converted_at,omitempty"`
	CorrelatedOrderID  *string             `gorm:"size:64;uniqueIndex:uk_click_records_correlated_order_id" json:"correlated_order_id,omitempty"`
	ConfidenceTier     *ConfidenceTier     `gorm:"size:16" json:"confidence_tier,omitempty"`
	MatchMethod        *MatchMethod        `gorm:"size:32" json:"match_method,omitempty"`
	MatchScore         *int                `json:"match_score,omitempty"`
	MatchDetails       *MatchDetails       `gorm:"type:jsonb" json:"match_details,omitempty"`
	ConversionSnapshot *ConversionSnapshot `gorm:"type:jsonb" json:"conversion_snapshot,omitempty"`
	CorrelationRunID   *uuid.UUID          `gorm:"type:uuid;index:idx_click_records_correlation_run_id" json:"correlation_run_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_click_records_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for ClickRecord
func (ClickRecord) TableName() string { return "click_records" }

// Status derives the lifecycle state from the write-once flags
func (c ClickRecord) Status() ClickStatus {
	switch {
	case c.Converted:
		return ClickStatusConverted
	case c.Clicked:
		return ClickStatusClicked
	default:
		return ClickStatusPending
	}
}

// ClickRecordFilter represents filter criteria for click record queries
type ClickRecordFilter struct {
	ID                *uint
	ClickID           *string
	UserID            *string
	ItemID            *string
	CampaignID        *string
	Clicked           *bool
	Converted         *bool
	CorrelatedOrderID *string
	ConfidenceTier    *ConfidenceTier
	CorrelationRunID  *uuid.UUID
	ClickedAfter      *time.Time
	ClickedBefore     *time.Time
	ConvertedAfter    *time.Time
	ConvertedBefore   *time.Time
}

// ConversionOutcome is everything written when a click is converted
type ConversionOutcome struct {
	OrderID          string
	ConfidenceTier   ConfidenceTier
	MatchMethod      MatchMethod
	MatchScore       int
	MatchDetails     MatchDetails
	Snapshot         ConversionSnapshot
	CorrelationRunID *uuid.UUID
	ConvertedAt      time.Time
}

// ClickVisit is the request context captured on the first redirect
type ClickVisit struct {
	At        time.Time
	UserAgent string
	IP        string
}
