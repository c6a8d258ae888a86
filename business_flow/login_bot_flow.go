package businessflow

import (
	"context"
	"errors"
	"log"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/app/services"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BotAuthFlow represents the bot authentication flow used by handlers
type BotAuthFlow interface {
	Verify(ctx context.Context, req *dto.BotLoginRequest, metadata *ClientMetadata) (*dto.BotLoginResponse, error)
	// Refresh exchanges a refresh token of an active bot for a new token pair
	Refresh(ctx context.Context, req *dto.BotRefreshRequest) (*dto.BotLoginResponse, error)
	// EnsureBot creates the bot account if it does not exist yet
	EnsureBot(ctx context.Context, username, password string, bcryptCost int) error
}

type BotAuthFlowImpl struct {
	botRepo      repository.BotRepository
	tokenService services.TokenService
}

func NewBotAuthFlow(botRepo repository.BotRepository, tokenService services.TokenService) BotAuthFlow {
	return &BotAuthFlowImpl{
		botRepo:      botRepo,
		tokenService: tokenService,
	}
}

func (bf *BotAuthFlowImpl) Verify(ctx context.Context, req *dto.BotLoginRequest, metadata *ClientMetadata) (*dto.BotLoginResponse, error) {
	if req == nil || len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("BOT_LOGIN_VALIDATION_FAILED", "Bot login validation failed", ErrIncorrectPassword)
	}

	bot, err := bf.botRepo.ByUsername(ctx, req.Username)
	if err != nil {
		return nil, NewBusinessError("BOT_LOOKUP_FAILED", "Failed to lookup bot", err)
	}
	if bot == nil {
		return nil, NewBusinessError("BOT_NOT_FOUND", "Bot not found", ErrBotNotFound)
	}
	if !utils.IsTrue(bot.IsActive) {
		return nil, NewBusinessError("BOT_INACTIVE", "Bot account is inactive", ErrBotInactive)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(bot.PasswordHash), []byte(req.Password)); err != nil {
		return nil, NewBusinessError("BOT_INCORRECT_PASSWORD", "Incorrect password", ErrIncorrectPassword)
	}

	accessToken, refreshToken, err := bf.tokenService.GenerateBotTokens(bot.ID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	if err := bf.botRepo.UpdateLastLogin(ctx, bot.ID, utils.UTCNow()); err != nil {
		ip := ""
		if metadata != nil {
			ip = metadata.IPAddress
		}
		log.Printf("bot %s logged in from %s but last login was not stored: %v", bot.Username, ip, err)
	}

	resp := &dto.BotLoginResponse{
		Bot:     ToBotDTOModel(*bot),
		Session: ToBotSessionDTO(accessToken, refreshToken),
	}
	return resp, nil
}

func (bf *BotAuthFlowImpl) Refresh(ctx context.Context, req *dto.BotRefreshRequest) (*dto.BotLoginResponse, error) {
	if req == nil || len(req.RefreshToken) == 0 {
		return nil, NewBusinessError("BOT_REFRESH_VALIDATION_FAILED", "Refresh token is required", ErrInvalidRefresh)
	}

	claims, err := bf.tokenService.ValidateBotToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("BOT_REFRESH_INVALID", "Invalid refresh token", errors.Join(ErrInvalidRefresh, err))
	}

	bot, err := bf.botRepo.ByID(ctx, claims.BotID)
	if err != nil {
		return nil, NewBusinessError("BOT_LOOKUP_FAILED", "Failed to lookup bot", err)
	}
	if bot == nil {
		return nil, NewBusinessError("BOT_NOT_FOUND", "Bot not found", ErrBotNotFound)
	}
	if !utils.IsTrue(bot.IsActive) {
		return nil, NewBusinessError("BOT_INACTIVE", "Bot account is inactive", ErrBotInactive)
	}

	// rejects access tokens presented as refresh tokens
	accessToken, refreshToken, err := bf.tokenService.RefreshBotToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("BOT_REFRESH_INVALID", "Invalid refresh token", errors.Join(ErrInvalidRefresh, err))
	}

	return &dto.BotLoginResponse{
		Bot:     ToBotDTOModel(*bot),
		Session: ToBotSessionDTO(accessToken, refreshToken),
	}, nil
}

func (bf *BotAuthFlowImpl) EnsureBot(ctx context.Context, username, password string, bcryptCost int) error {
	if username == "" || password == "" {
		return nil
	}

	existing, err := bf.botRepo.ByUsername(ctx, username)
	if err != nil {
		return NewBusinessError("BOT_LOOKUP_FAILED", "Failed to lookup bot", err)
	}
	if existing != nil {
		return nil
	}

	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return NewBusinessError("BOT_PASSWORD_HASH_FAILED", "Failed to hash bot password", err)
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
	if err := bf.botRepo.Save(ctx, bot); err != nil {
		return NewBusinessError("BOT_CREATE_FAILED", "Failed to create bot", err)
	}
	return nil
}
