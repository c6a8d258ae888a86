package businessflow

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/app/services"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/correlation"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
)

// ClickRecordFlow creates tracked links and serves their support view
type ClickRecordFlow interface {
	Record(ctx context.Context, req *dto.RecordClickRequest) (*dto.RecordClickResponse, error)
	GetClick(ctx context.Context, clickID string) (*dto.ClickRecordDTO, error)
}

type ClickRecordFlowImpl struct {
	clickRepo   repository.ClickRecordRepository
	idGenerator services.ClickIDGenerator
	itemPattern *regexp.Regexp
	linkDomain  string
}

// NewClickRecordFlow creates the recorder. The item id pattern comes from configuration.
func NewClickRecordFlow(
	clickRepo repository.ClickRecordRepository,
	idGenerator services.ClickIDGenerator,
	cfg config.AttributionConfig,
) (ClickRecordFlow, error) {
	pattern := cfg.ItemIDPattern
	if pattern == "" {
		pattern = utils.DefaultItemIDPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid item id pattern: %w", err)
	}
	return &ClickRecordFlowImpl{
		clickRepo:   clickRepo,
		idGenerator: idGenerator,
		itemPattern: re,
		linkDomain:  strings.TrimRight(cfg.ShortLinkDomain, "/"),
	}, nil
}

func (f *ClickRecordFlowImpl) Record(ctx context.Context, req *dto.RecordClickRequest) (*dto.RecordClickResponse, error) {
	if err := f.validateRecordRequest(req); err != nil {
		return nil, err
	}

	itemID := f.resolveItemID(req)
	click := &models.ClickRecord{
		ClickID:         f.idGenerator.NewClickID(),
		UserID:          strings.TrimSpace(req.UserID),
		OriginalURL:     strings.TrimSpace(req.OriginalURL),
		ItemID:          itemID,
		ProductLabel:    trimmed(req.ProductLabel),
		CampaignID:      trimmed(req.CampaignID),
		AdID:            trimmed(req.AdID),
		Channel:         trimmed(req.Channel),
		CampaignContext: campaignContext(req.CampaignContext),
		CityHint:        trimmed(req.CityHint),
		RegionHint:      trimmed(req.RegionHint),
		CreatedAt:       utils.UTCNow(),
		UpdatedAt:       utils.UTCNow(),
	}

	if err := f.clickRepo.Save(ctx, click); err != nil {
		log.Printf("click record insert failed for user %s: %v", click.UserID, err)
		return nil, NewBusinessError("CLICK_RECORD_FAILED", "Failed to record tracked link", fmt.Errorf("%w: %v", ErrClickStoreNotAvailable, err))
	}

	clicksRecordedTotal.WithLabelValues(boolLabel(itemID != nil)).Inc()

	return &dto.RecordClickResponse{
		ClickID:    click.ClickID,
		TrackedURL: f.TrackedURL(click.ClickID),
		ItemID:     click.ItemID,
	}, nil
}

func (f *ClickRecordFlowImpl) GetClick(ctx context.Context, clickID string) (*dto.ClickRecordDTO, error) {
	clickID = strings.TrimSpace(clickID)
	if clickID == "" {
		return nil, NewBusinessError("CLICK_ID_REQUIRED", "Click id is required", ErrClickIDRequired)
	}

	click, err := f.clickRepo.ByClickID(ctx, clickID)
	if err != nil {
		return nil, NewBusinessError("CLICK_LOOKUP_FAILED", "Failed to lookup click", err)
	}
	if click == nil {
		return nil, NewBusinessError("CLICK_NOT_FOUND", "Click not found", ErrClickNotFound)
	}

	out := ToClickRecordDTO(*click, f.TrackedURL(click.ClickID))
	return &out, nil
}

// TrackedURL returns the shareable redirect URL of a click
func (f *ClickRecordFlowImpl) TrackedURL(clickID string) string {
	return f.linkDomain + "/r/" + clickID
}

func (f *ClickRecordFlowImpl) validateRecordRequest(req *dto.RecordClickRequest) error {
	if req == nil || strings.TrimSpace(req.UserID) == "" {
		return NewBusinessError("USER_ID_REQUIRED", "User id is required", ErrUserIDRequired)
	}
	u, err := url.Parse(strings.TrimSpace(req.OriginalURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewBusinessError("INVALID_DESTINATION_URL", "Destination must be an absolute http(s) URL", ErrInvalidDestinationURL)
	}
	return nil
}

// resolveItemID prefers an explicit item id and falls back to the URL pattern
func (f *ClickRecordFlowImpl) resolveItemID(req *dto.RecordClickRequest) *string {
	if req.ItemID != nil {
		if id := correlation.NormalizeItemID(*req.ItemID); id != "" {
			return &id
		}
	}
	return f.ExtractItemID(req.OriginalURL)
}

// ExtractItemID finds a marketplace item id in a URL. With two capture groups the
// id is prefix + digits; otherwise the whole match is used.
func (f *ClickRecordFlowImpl) ExtractItemID(rawURL string) *string {
	target := rawURL
	if decoded, err := url.PathUnescape(rawURL); err == nil {
		target = decoded
	}

	m := f.itemPattern.FindStringSubmatch(target)
	if m == nil {
		return nil
	}
	var id string
	if len(m) >= 3 {
		id = m[1] + m[2]
	} else {
		id = m[0]
	}
	id = correlation.NormalizeItemID(id)
	if id == "" {
		return nil
	}
	return &id
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return utils.NilIfEmpty(*s)
}

func campaignContext(in map[string]string) models.CampaignContext {
	if len(in) == 0 {
		return nil
	}
	out := make(models.CampaignContext, len(in))
	for k, v := range in {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = v
		}
	}
	return out
}
