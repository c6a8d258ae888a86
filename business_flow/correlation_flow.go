package businessflow

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/app/services"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/correlation"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
)

const correlationLockKey = "correlation:run:"

// CorrelationFlow runs batch correlation passes and lists their history
type CorrelationFlow interface {
	// Run performs one pass for a seller. Apart from validation and lease errors it
	// always returns a summary, also when every order failed.
	Run(ctx context.Context, req *dto.CorrelateRequest) (*dto.CorrelationSummaryResponse, error)
	ListRuns(ctx context.Context, req *dto.ListCorrelationRunsRequest) (*dto.ListCorrelationRunsResponse, error)
}

type CorrelationFlowImpl struct {
	clickRepo repository.ClickRecordRepository
	runRepo   repository.CorrelationRunRepository
	feed      services.OrderFeedClient
	engine    *correlation.Engine
	locker    services.RunLocker
	publisher services.ConversionPublisher
	cfg       config.AttributionConfig
	now       func() time.Time
}

func NewCorrelationFlow(
	clickRepo repository.ClickRecordRepository,
	runRepo repository.CorrelationRunRepository,
	feed services.OrderFeedClient,
	engine *correlation.Engine,
	locker services.RunLocker,
	publisher services.ConversionPublisher,
	cfg config.AttributionConfig,
) CorrelationFlow {
	if publisher == nil {
		publisher = services.NewConversionPublisher(config.EventsConfig{})
	}
	return &CorrelationFlowImpl{
		clickRepo: clickRepo,
		runRepo:   runRepo,
		feed:      feed,
		engine:    engine,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		now:       utils.UTCNow,
	}
}

// runParams are the validated inputs of one pass
type runParams struct {
	sellerID   string
	lookback   time.Duration
	orderLimit int
	dryRun     bool
}

// runState is the mutable bookkeeping of one pass. It never outlives Run.
type runState struct {
	run       *models.CorrelationRun
	persisted bool
	params    runParams
	pool      []*models.ClickRecord
	clicks    map[string]*models.ClickRecord
	assigned  correlation.AssignedSet
	resolver  correlation.AddressResolver
	matches   []dto.CorrelationMatchDTO
	failure   error
}

func (f *CorrelationFlowImpl) Run(ctx context.Context, req *dto.CorrelateRequest) (*dto.CorrelationSummaryResponse, error) {
	params, err := f.validateRunRequest(req)
	if err != nil {
		return nil, err
	}

	release, err := f.locker.Acquire(ctx, correlationLockKey+params.sellerID, f.lockTTL())
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			return nil, NewBusinessError("CORRELATION_RUN_IN_PROGRESS", "A correlation run is already in progress for this seller", ErrCorrelationRunInProgress)
		}
		return nil, NewBusinessError("CORRELATION_LOCK_FAILED", "Failed to acquire correlation lease", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, f.runTimeout())
	defer cancel()

	state := f.startRun(ctx, params)
	dateTo := state.run.StartedAt
	dateFrom := dateTo.Add(-params.lookback)

	pool, err := f.clickRepo.ListConversionCandidates(ctx, dateFrom.Add(-f.engine.Window()), dateTo)
	if err != nil {
		log.Printf("correlation %s: loading candidate clicks failed: %v", state.run.UUID, err)
		state.run.Errors++
		state.failure = err
		return f.finishRun(ctx, state), nil
	}
	state.pool = pool
	for _, c := range pool {
		state.clicks[c.ClickID] = c
	}

	f.scanOrders(ctx, state, dateFrom, dateTo)
	return f.finishRun(ctx, state), nil
}

func (f *CorrelationFlowImpl) validateRunRequest(req *dto.CorrelateRequest) (runParams, error) {
	if req == nil || strings.TrimSpace(req.SellerID) == "" {
		return runParams{}, NewBusinessError("INVALID_SELLER_ID", "Seller id is required", ErrInvalidSellerID)
	}
	p := runParams{
		sellerID:   strings.TrimSpace(req.SellerID),
		lookback:   f.cfg.DefaultLookback,
		orderLimit: f.cfg.DefaultOrderLimit,
		dryRun:     req.DryRun,
	}
	if p.lookback <= 0 {
		p.lookback = utils.AttributionWindow
	}
	if p.orderLimit <= 0 {
		p.orderLimit = utils.DefaultOrderLimit
	}

	if req.LookbackHours != nil {
		if *req.LookbackHours <= 0 {
			return runParams{}, NewBusinessError("INVALID_LOOKBACK", "Lookback hours must be positive", ErrInvalidLookback)
		}
		p.lookback = time.Duration(*req.LookbackHours) * time.Hour
	}
	if req.OrderLimit != nil {
		if *req.OrderLimit <= 0 {
			return runParams{}, NewBusinessError("INVALID_ORDER_LIMIT", "Order limit must be positive", ErrInvalidOrderLimit)
		}
		if f.cfg.MaxOrderLimit > 0 && *req.OrderLimit > f.cfg.MaxOrderLimit {
			return runParams{}, NewBusinessErrorf("ORDER_LIMIT_TOO_LARGE", "Order limit must not exceed %d", ErrOrderLimitTooLarge, f.cfg.MaxOrderLimit)
		}
		p.orderLimit = *req.OrderLimit
	}
	return p, nil
}

func (f *CorrelationFlowImpl) startRun(ctx context.Context, params runParams) *runState {
	run := &models.CorrelationRun{
		UUID:          uuid.New(),
		SellerID:      params.sellerID,
		DryRun:        params.dryRun,
		LookbackHours: int(params.lookback / time.Hour),
		OrderLimit:    params.orderLimit,
		Status:        models.CorrelationRunStatusRunning,
		StartedAt:     f.now(),
	}

	state := &runState{
		run:      run,
		params:   params,
		clicks:   make(map[string]*models.ClickRecord),
		assigned: correlation.NewAssignedSet(),
		resolver: correlation.AddressResolverFunc(func(ctx context.Context, order models.Order) (*models.ShipmentAddress, error) {
			return f.feed.GetShipmentAddress(ctx, params.sellerID, order.ShipmentID)
		}),
	}

	// the audit row is best effort; a pass is never blocked by it
	if err := f.runRepo.Save(ctx, run); err != nil {
		log.Printf("correlation %s: failed to persist run row: %v", run.UUID, err)
	} else {
		state.persisted = true
	}
	return state
}

// maxConsecutivePageFailures stops a scan once the feed keeps failing page after page
const maxConsecutivePageFailures = 3

// scanOrders pages through the feed until it is exhausted, the provider's maximum
// offset is reached or the order limit is scanned. A failed page is counted and skipped.
func (f *CorrelationFlowImpl) scanOrders(ctx context.Context, state *runState, dateFrom, dateTo time.Time) {
	pageSize := f.cfg.PageSize
	if pageSize <= 0 {
		pageSize = utils.DefaultOrderPageSize
	}
	maxOffset := f.cfg.MaxOffset
	if maxOffset <= 0 {
		maxOffset = utils.DefaultOrderMaxOffset
	}

	scanned, offset, failures := 0, 0, 0
	for scanned < state.params.orderLimit && offset <= maxOffset {
		limit := min(pageSize, state.params.orderLimit-scanned)
		page, err := f.feed.GetOrders(ctx, state.params.sellerID, models.OrderQuery{
			DateFrom: dateFrom,
			DateTo:   dateTo,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			log.Printf("correlation %s: order page at offset %d failed: %v", state.run.UUID, offset, err)
			state.run.Errors++
			if ctxErr := ctx.Err(); ctxErr != nil {
				state.failure = ctxErr
				return
			}
			failures++
			if failures >= maxConsecutivePageFailures {
				log.Printf("correlation %s: giving up after %d failed pages", state.run.UUID, failures)
				return
			}
			offset += limit
		} else {
			failures = 0
			for _, order := range page.Orders {
				if scanned >= state.params.orderLimit {
					break
				}
				scanned++
				f.processOrder(ctx, state, order)
			}

			if !page.HasMore || len(page.Orders) == 0 {
				return
			}
			offset += len(page.Orders)
		}

		if err := utils.SleepContext(ctx, f.cfg.PageDelay); err != nil {
			log.Printf("correlation %s: stopped between pages: %v", state.run.UUID, err)
			state.failure = err
			return
		}
	}
}

func (f *CorrelationFlowImpl) processOrder(ctx context.Context, state *runState, order models.Order) {
	if !order.IsPaid() {
		return
	}
	run := state.run
	run.OrdersProcessed++

	if order.IsMalformed() {
		log.Printf("correlation %s: skipping malformed order %q", run.UUID, order.ID)
		run.NoMatch++
		return
	}

	existing, err := f.clickRepo.ByCorrelatedOrderID(ctx, order.ID)
	if err != nil {
		log.Printf("correlation %s: idempotency check for order %s failed: %v", run.UUID, order.ID, err)
		run.Errors++
		return
	}
	if existing != nil {
		run.AlreadyCorrelated++
		return
	}

	res, next := f.engine.MatchOrder(ctx, order, state.pool, state.assigned, state.resolver)
	if res.CandidatesConsidered > 0 {
		run.OrdersWithCandidates++
	}
	if res.ShipmentErr != nil {
		log.Printf("correlation %s: shipment lookup for order %s failed: %v", run.UUID, order.ID, res.ShipmentErr)
		run.Errors++
	}
	if res.Match == nil {
		run.NoMatch++
		return
	}
	match := res.Match

	if state.params.dryRun {
		state.assigned = next
		state.matches = append(state.matches, toMatchDTO(order.ID, match))
		return
	}

	shipment := match.Shipment
	if shipment == nil && order.ShipmentID != "" && match.Method == models.MatchMethodItem {
		addr, err := state.resolver.ShipmentAddress(ctx, order)
		if err != nil {
			log.Printf("correlation %s: snapshot shipment for order %s unavailable: %v", run.UUID, order.ID, err)
		} else {
			shipment = addr
		}
	}

	convertedAt := f.now()
	outcome := models.ConversionOutcome{
		OrderID:          order.ID,
		ConfidenceTier:   match.Confidence,
		MatchMethod:      match.Method,
		MatchScore:       match.Score,
		MatchDetails:     match.Details,
		Snapshot:         order.Snapshot(match.ItemID, shipment, convertedAt),
		CorrelationRunID: &run.UUID,
		ConvertedAt:      convertedAt,
	}

	err = f.clickRepo.MarkConverted(ctx, match.ClickID, outcome)
	switch {
	case err == nil:
		state.assigned = next
		run.Correlated++
		conversionsTotal.WithLabelValues(match.Method.String(), match.Confidence.String()).Inc()
		f.publish(ctx, state, order, match, outcome)
	case errors.Is(err, repository.ErrOrderAlreadyCorrelated):
		// another writer got there first; the click stays available
		run.AlreadyCorrelated++
	case errors.Is(err, repository.ErrClickNotConvertible):
		// the click changed under us, keep it out of this run
		log.Printf("correlation %s: click %s no longer convertible for order %s", run.UUID, match.ClickID, order.ID)
		state.assigned = next
		run.Errors++
	default:
		log.Printf("correlation %s: persisting match %s -> %s failed: %v", run.UUID, order.ID, match.ClickID, err)
		run.Errors++
	}
}

func (f *CorrelationFlowImpl) publish(ctx context.Context, state *runState, order models.Order, match *correlation.Match, outcome models.ConversionOutcome) {
	event := services.ConversionEvent{
		ClickID:        match.ClickID,
		OrderID:        order.ID,
		SellerID:       state.params.sellerID,
		RunID:          state.run.UUID.String(),
		ItemID:         outcome.Snapshot.ItemID,
		ConfidenceTier: match.Confidence.String(),
		MatchMethod:    match.Method.String(),
		MatchScore:     match.Score,
		PaidAmount:     order.PaidAmount,
		Currency:       order.Currency,
		ConvertedAt:    outcome.ConvertedAt,
	}
	if click, ok := state.clicks[match.ClickID]; ok {
		event.UserID = click.UserID
		event.CampaignID = click.CampaignID
		event.AdID = click.AdID
		if click.ClickedAt != nil {
			event.ClickedAt = click.ClickedAt.UTC()
		}
	}
	if err := f.publisher.PublishConversion(ctx, event); err != nil {
		log.Printf("correlation %s: publishing conversion of order %s failed: %v", state.run.UUID, order.ID, err)
	}
}

func (f *CorrelationFlowImpl) finishRun(ctx context.Context, state *runState) *dto.CorrelationSummaryResponse {
	run := state.run
	run.FinishedAt = utils.ToPtr(f.now())
	run.Status = models.CorrelationRunStatusCompleted
	if state.failure != nil {
		run.Status = models.CorrelationRunStatusFailed
		run.FailureReason = utils.ToPtr(state.failure.Error())
	}

	if state.persisted {
		// the run may have been cancelled; the audit row is still closed
		if err := f.runRepo.Finish(context.WithoutCancel(ctx), run); err != nil {
			log.Printf("correlation %s: failed to finish run row: %v", run.UUID, err)
		}
	}

	correlationRunsTotal.WithLabelValues(string(run.Status), boolLabel(run.DryRun)).Inc()
	correlationRunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	correlationErrorsTotal.Add(float64(run.Errors))

	log.Printf("correlation %s: seller=%s dry_run=%t processed=%d candidates=%d correlated=%d already=%d no_match=%d errors=%d",
		run.UUID, run.SellerID, run.DryRun, run.OrdersProcessed, run.OrdersWithCandidates,
		run.Correlated, run.AlreadyCorrelated, run.NoMatch, run.Errors)

	summary := &dto.CorrelationSummaryResponse{
		RunID:                run.UUID.String(),
		SellerID:             run.SellerID,
		DryRun:               run.DryRun,
		OrdersProcessed:      run.OrdersProcessed,
		OrdersWithCandidates: run.OrdersWithCandidates,
		Correlated:           run.Correlated,
		AlreadyCorrelated:    run.AlreadyCorrelated,
		NoMatch:              run.NoMatch,
		Errors:               run.Errors,
		StartedAt:            run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:           run.FinishedAt.UTC().Format(time.RFC3339),
	}
	if run.DryRun {
		summary.Matches = state.matches
		if summary.Matches == nil {
			summary.Matches = []dto.CorrelationMatchDTO{}
		}
	}
	return summary
}

func (f *CorrelationFlowImpl) ListRuns(ctx context.Context, req *dto.ListCorrelationRunsRequest) (*dto.ListCorrelationRunsResponse, error) {
	limit := 20
	var filter models.CorrelationRunFilter
	if req != nil {
		if req.Limit > 0 {
			limit = req.Limit
		}
		filter.SellerID = trimmed(req.SellerID)
	}

	runs, err := f.runRepo.ByFilter(ctx, filter, "started_at DESC, id DESC", limit, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_CORRELATION_RUNS_FAILED", "Failed to list correlation runs", err)
	}

	items := make([]dto.CorrelationRunDTO, 0, len(runs))
	for _, r := range runs {
		items = append(items, ToCorrelationRunDTO(*r))
	}
	return &dto.ListCorrelationRunsResponse{Items: items}, nil
}

func (f *CorrelationFlowImpl) lockTTL() time.Duration {
	if f.cfg.RunLockTTL > 0 {
		return f.cfg.RunLockTTL
	}
	return 15 * time.Minute
}

// runTimeout bounds a pass so it never outlives its lease
func (f *CorrelationFlowImpl) runTimeout() time.Duration {
	ttl := f.lockTTL()
	if f.cfg.RunTimeout <= 0 || f.cfg.RunTimeout >= ttl {
		return ttl * 9 / 10
	}
	return f.cfg.RunTimeout
}

func toMatchDTO(orderID string, m *correlation.Match) dto.CorrelationMatchDTO {
	return dto.CorrelationMatchDTO{
		OrderID:        orderID,
		ClickID:        m.ClickID,
		ConfidenceTier: m.Confidence.String(),
		MatchMethod:    m.Method.String(),
		MatchScore:     m.Score,
		ElapsedHours:   m.Elapsed.Hours(),
		ItemID:         m.ItemID,
	}
}
