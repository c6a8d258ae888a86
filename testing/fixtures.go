package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// ClickOption customizes a fixture click before it is stored
type ClickOption func(*models.ClickRecord)

func WithItem(itemID string) ClickOption {
	return func(c *models.ClickRecord) { c.ItemID = utils.ToPtr(itemID) }
}

func WithLabel(label string) ClickOption {
	return func(c *models.ClickRecord) { c.ProductLabel = utils.ToPtr(label) }
}

func WithCity(city string) ClickOption {
	return func(c *models.ClickRecord) { c.CityHint = utils.ToPtr(city) }
}

func WithRegion(region string) ClickOption {
	return func(c *models.ClickRecord) { c.RegionHint = utils.ToPtr(region) }
}

func WithCampaign(campaignID, adID string) ClickOption {
	return func(c *models.ClickRecord) {
		c.CampaignID = utils.ToPtr(campaignID)
		c.AdID = utils.ToPtr(adID)
	}
}

// ClickedAt marks the fixture as clicked at the given time
func ClickedAt(at time.Time) ClickOption {
	return func(c *models.ClickRecord) {
		c.Clicked = true
		c.ClickedAt = utils.ToPtr(at.UTC())
		if c.CreatedAt.IsZero() || c.CreatedAt.After(at) {
			c.CreatedAt = at.UTC().Add(-time.Minute)
			c.UpdatedAt = c.CreatedAt
		}
	}
}

// CreateTestClick stores a pending click unless ClickedAt is given
func (tf *TestFixtures) CreateTestClick(clickID string, opts ...ClickOption) (*models.ClickRecord, error) {
	now := utils.UTCNow().Truncate(time.Second)
	click := &models.ClickRecord{
		ClickID:     clickID,
		UserID:      "user-" + clickID,
		OriginalURL: "https://articulo.mercadolibre.com.mx/" + clickID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, o := range opts {
		o(click)
	}

	if err := tf.DB.DB.Create(click).Error; err != nil {
		return nil, fmt.Errorf("failed to create test click: %w", err)
	}
	return click, nil
}

// CreateTestBot creates an active bot with the given credentials
func (tf *TestFixtures) CreateTestBot(username, password string) (*models.Bot, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := utils.UTCNow()
	bot := &models.Bot{
		UUID:         uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     utils.ToPtr(true),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tf.DB.DB.Create(bot).Error; err != nil {
		return nil, fmt.Errorf("failed to create test bot: %w", err)
	}
	return bot, nil
}

// ReloadClick reads a click back from the database
func (tf *TestFixtures) ReloadClick(clickID string) (*models.ClickRecord, error) {
	var click models.ClickRecord
	if err := tf.DB.DB.Where("click_id = ?", clickID).First(&click).Error; err != nil {
		return nil, fmt.Errorf("failed to reload click %s: %w", clickID, err)
	}
	return &click, nil
}

// PaidOrder builds a paid order placed at createdAt
func PaidOrder(id string, createdAt time.Time, items ...models.OrderItem) models.Order {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return models.Order{
		ID:          id,
		Status:      utils.PaidOrderStatus,
		CreatedAt:   utils.ToPtr(createdAt.UTC()),
		Buyer:       models.OrderBuyer{ID: "buyer-" + id, Nickname: "BUYER" + id},
		Items:       items,
		TotalAmount: total,
		PaidAmount:  total,
		Currency:    "MXN",
		ShipmentID:  "ship-" + id,
	}
}

// OrderItem builds a single-unit order line
func OrderItem(itemID, title string, price int64) models.OrderItem {
	return models.OrderItem{ItemID: itemID, Title: title, Quantity: 1, UnitPrice: decimal.NewFromInt(price)}
}
