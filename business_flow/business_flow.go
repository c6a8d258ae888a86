package businessflow

import (
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds the caller information recorded with clicks and logins
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// redisKey namespaces a cache key with the configured prefix
func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

// ToBotDTOModel converts a bot model for authentication responses
func ToBotDTOModel(bot models.Bot) dto.BotDTO {
	return dto.BotDTO{
		ID:        bot.ID,
		UUID:      bot.UUID.String(),
		Username:  bot.Username,
		IsActive:  bot.IsActive,
		CreatedAt: bot.CreatedAt.Format(time.RFC3339),
	}
}

// ToBotSessionDTO wraps a freshly issued token pair
func ToBotSessionDTO(accessToken, refreshToken string) dto.BotSessionDTO {
	return dto.BotSessionDTO{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(utils.AccessTokenTTLSeconds),
		TokenType:    "Bearer",
		CreatedAt:    utils.UTCNowRFC3339(),
	}
}

// ToClickRecordDTO converts a click record for API responses
func ToClickRecordDTO(click models.ClickRecord, trackedURL string) dto.ClickRecordDTO {
	out := dto.ClickRecordDTO{
		ClickID:            click.ClickID,
		TrackedURL:         trackedURL,
		Status:             string(click.Status()),
		UserID:             click.UserID,
		OriginalURL:        click.OriginalURL,
		ItemID:             click.ItemID,
		ProductLabel:       click.ProductLabel,
		CampaignID:         click.CampaignID,
		AdID:               click.AdID,
		Channel:            click.Channel,
		CampaignContext:    click.CampaignContext,
		CityHint:           click.CityHint,
		RegionHint:         click.RegionHint,
		Clicked:            click.Clicked,
		ClickedAt:          formatTimePtr(click.ClickedAt),
		Converted:          click.Converted,
		ConvertedAt:        formatTimePtr(click.ConvertedAt),
		CorrelatedOrderID:  click.CorrelatedOrderID,
		MatchScore:         click.MatchScore,
		MatchDetails:       click.MatchDetails,
		ConversionSnapshot: click.ConversionSnapshot,
		CreatedAt:          click.CreatedAt.UTC().Format(time.RFC3339),
	}
	if click.ConfidenceTier != nil {
		out.ConfidenceTier = utils.ToPtr(click.ConfidenceTier.String())
	}
	if click.MatchMethod != nil {
		out.MatchMethod = utils.ToPtr(click.MatchMethod.String())
	}
	if click.CorrelationRunID != nil {
		out.CorrelationRunID = utils.ToPtr(click.CorrelationRunID.String())
	}
	return out
}

// ToCorrelationRunDTO converts a run audit row for API responses
func ToCorrelationRunDTO(run models.CorrelationRun) dto.CorrelationRunDTO {
	return dto.CorrelationRunDTO{
		RunID:                run.UUID.String(),
		SellerID:             run.SellerID,
		DryRun:               run.DryRun,
		Status:               string(run.Status),
		LookbackHours:        run.LookbackHours,
		OrderLimit:           run.OrderLimit,
		OrdersProcessed:      run.OrdersProcessed,
		OrdersWithCandidates: run.OrdersWithCandidates,
		Correlated:           run.Correlated,
		AlreadyCorrelated:    run.AlreadyCorrelated,
		NoMatch:              run.NoMatch,
		Errors:               run.Errors,
		FailureReason:        run.FailureReason,
		StartedAt:            run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:           formatTimePtr(run.FinishedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return utils.ToPtr(t.UTC().Format(time.RFC3339))
}
