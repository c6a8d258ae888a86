package businessflow

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/redis/go-redis/v9"
)

// Redirect results reported in logs and metrics
const (
	RedirectFirstClick = "first_click"
	RedirectReplay     = "replay"
	RedirectUnknown    = "unknown"
	RedirectError      = "error"
)

const clickURLCacheKey = "click:url:"

// RedirectOutcome is where a tracked link sends the user
type RedirectOutcome struct {
	URL    string
	Result string
}

// ClickRedirectFlow resolves a tracked link and records the first click on it.
// Public flow, no authentication required. It never fails: unknown links and
// store errors resolve to the fallback destination.
type ClickRedirectFlow interface {
	Resolve(ctx context.Context, clickID string, metadata *ClientMetadata) RedirectOutcome
}

type ClickRedirectFlowImpl struct {
	clickRepo   repository.ClickRecordRepository
	rc          *redis.Client
	cacheConfig config.CacheConfig
	fallbackURL string
	now         func() time.Time
}

// NewClickRedirectFlow creates the resolver. rc may be nil when the cache is disabled.
func NewClickRedirectFlow(
	clickRepo repository.ClickRecordRepository,
	rc *redis.Client,
	cacheConfig config.CacheConfig,
	attributionConfig config.AttributionConfig,
) ClickRedirectFlow {
	return &ClickRedirectFlowImpl{
		clickRepo:   clickRepo,
		rc:          rc,
		cacheConfig: cacheConfig,
		fallbackURL: attributionConfig.RedirectFallbackURL,
		now:         utils.UTCNow,
	}
}

func (f *ClickRedirectFlowImpl) Resolve(ctx context.Context, clickID string, metadata *ClientMetadata) RedirectOutcome {
	clickID = strings.TrimSpace(clickID)
	if clickID == "" {
		return f.fallback(RedirectUnknown)
	}

	destination, alreadyClicked, found, err := f.lookup(ctx, clickID)
	if err != nil {
		log.Printf("redirect: lookup of click %s failed: %v", clickID, err)
		return f.fallback(RedirectError)
	}
	if !found {
		log.Printf("redirect: unknown click id %s", clickID)
		return f.fallback(RedirectUnknown)
	}
	if alreadyClicked {
		redirectsTotal.WithLabelValues(RedirectReplay).Inc()
		return RedirectOutcome{URL: destination, Result: RedirectReplay}
	}

	visit := models.ClickVisit{At: f.now()}
	if metadata != nil {
		visit.UserAgent = metadata.UserAgent
		visit.IP = metadata.IPAddress
	}

	won, err := f.clickRepo.MarkClicked(ctx, clickID, visit)
	if err != nil {
		// the destination is known, so the user still gets there
		log.Printf("redirect: marking click %s failed: %v", clickID, err)
		redirectsTotal.WithLabelValues(RedirectError).Inc()
		return RedirectOutcome{URL: destination, Result: RedirectError}
	}

	result := RedirectReplay
	if won {
		result = RedirectFirstClick
	}
	redirectsTotal.WithLabelValues(result).Inc()
	return RedirectOutcome{URL: destination, Result: result}
}

// lookup returns the destination of a click, from cache when possible.
// A cache hit does not know the clicked flag, so it reports alreadyClicked=false
// and lets the conditional update decide.
func (f *ClickRedirectFlowImpl) lookup(ctx context.Context, clickID string) (destination string, alreadyClicked, found bool, err error) {
	key := redisKey(f.cacheConfig, clickURLCacheKey+clickID)
	if f.rc != nil {
		cached, cerr := f.rc.Get(ctx, key).Result()
		switch {
		case cerr == nil && cached != "":
			return cached, false, true, nil
		case cerr != nil && !errors.Is(cerr, redis.Nil):
			log.Printf("redirect: cache read for %s failed: %v", clickID, cerr)
		}
	}

	click, err := f.clickRepo.ByClickID(ctx, clickID)
	if err != nil {
		return "", false, false, err
	}
	if click == nil {
		return "", false, false, nil
	}

	if f.rc != nil {
		if cerr := f.rc.Set(ctx, key, click.OriginalURL, f.cacheTTL()).Err(); cerr != nil {
			log.Printf("redirect: cache write for %s failed: %v", clickID, cerr)
		}
	}
	return click.OriginalURL, click.Clicked, true, nil
}

func (f *ClickRedirectFlowImpl) cacheTTL() time.Duration {
	if f.cacheConfig.DefaultTTL > 0 {
		return f.cacheConfig.DefaultTTL
	}
	return time.Hour
}

func (f *ClickRedirectFlowImpl) fallback(result string) RedirectOutcome {
	redirectsTotal.WithLabelValues(result).Inc()
	return RedirectOutcome{URL: f.fallbackURL, Result: result}
}
