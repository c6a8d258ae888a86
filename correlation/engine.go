// Package correlation matches marketplace orders to earlier tracked clicks.
// It holds no state between calls: the set of clicks already assigned in a
// run is passed in and returned explicitly.
package correlation

import (
	"context"
	"sort"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
)

// AddressResolver looks up where an order was shipped
type AddressResolver interface {
	ShipmentAddress(ctx context.Context, order models.Order) (*models.ShipmentAddress, error)
}

// AddressResolverFunc adapts a function to AddressResolver
type AddressResolverFunc func(ctx context.Context, order models.Order) (*models.ShipmentAddress, error)

func (f AddressResolverFunc) ShipmentAddress(ctx context.Context, order models.Order) (*models.ShipmentAddress, error) {
	return f(ctx, order)
}

// SkipReason explains why an order was not evaluated
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipMalformed SkipReason = "malformed"
)

// OrderResult is the outcome of matching one order
type OrderResult struct {
	OrderID              string
	Match                *Match
	CandidatesConsidered int
	ShipmentErr          error
	Skipped              SkipReason
}

// Engine runs an ordered list of strategies over the eligible clicks of each order
type Engine struct {
	window     time.Duration
	strategies []Strategy
}

// DefaultStrategies returns item matching followed by the location/product fallback
func DefaultStrategies() []Strategy {
	return []Strategy{ItemMatchStrategy{}, LocationProductStrategy{}}
}

// NewEngine creates an engine. A non-positive window falls back to seven days and
// no strategies means DefaultStrategies.
func NewEngine(window time.Duration, strategies ...Strategy) *Engine {
	if window <= 0 {
		window = utils.AttributionWindow
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Engine{window: window, strategies: strategies}
}

// Window returns the maximum click-to-order gap the engine attributes
func (e *Engine) Window() time.Duration { return e.window }

// Correlate matches orders in sequence. A click assigned to one order is not
// offered to the orders after it.
func (e *Engine) Correlate(ctx context.Context, orders []models.Order, pool []*models.ClickRecord, assigned AssignedSet, resolver AddressResolver) ([]OrderResult, AssignedSet) {
	results := make([]OrderResult, 0, len(orders))
	for _, order := range orders {
		var res OrderResult
		res, assigned = e.MatchOrder(ctx, order, pool, assigned, resolver)
		results = append(results, res)
	}
	return results, assigned
}

// MatchOrder evaluates a single order and returns the assigned set including its match
func (e *Engine) MatchOrder(ctx context.Context, order models.Order, pool []*models.ClickRecord, assigned AssignedSet, resolver AddressResolver) (OrderResult, AssignedSet) {
	res := OrderResult{OrderID: order.ID}
	if order.IsMalformed() {
		res.Skipped = SkipMalformed
		return res, assigned
	}

	createdAt := order.CreatedAt.UTC()
	in := &Input{
		Order:      order,
		CreatedAt:  createdAt,
		Candidates: e.eligible(createdAt, pool, assigned),
		resolver:   resolver,
	}
	res.CandidatesConsidered = len(in.Candidates)
	if len(in.Candidates) == 0 {
		return res, assigned
	}

	for _, s := range e.strategies {
		if m := s.Evaluate(ctx, in); m != nil {
			res.Match = m
			break
		}
	}
	res.ShipmentErr = in.shipmentErr

	if res.Match == nil {
		return res, assigned
	}
	return res, assigned.With(res.Match.ClickID)
}

// eligible returns clicks that may be attributed to an order created at createdAt,
// most recent first. Clicks at or after the order time are never eligible.
func (e *Engine) eligible(createdAt time.Time, pool []*models.ClickRecord, assigned AssignedSet) []Candidate {
	var out []Candidate
	for _, click := range pool {
		if click == nil || click.Converted || !click.Clicked || click.ClickedAt == nil {
			continue
		}
		if assigned.Has(click.ClickID) {
			continue
		}
		clickedAt := click.ClickedAt.UTC()
		if !clickedAt.Before(createdAt) {
			continue
		}
		elapsed := createdAt.Sub(clickedAt)
		if elapsed > e.window {
			continue
		}
		out = append(out, Candidate{Click: click, Elapsed: elapsed})
	}
	sort.SliceStable(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

// AssignedSet is an immutable set of click ids already attributed in a run
type AssignedSet struct {
	ids map[string]struct{}
}

// NewAssignedSet builds a set from the given click ids
func NewAssignedSet(ids ...string) AssignedSet {
	s := AssignedSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s AssignedSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// With returns a copy of the set that also contains id
func (s AssignedSet) With(id string) AssignedSet {
	next := AssignedSet{ids: make(map[string]struct{}, len(s.ids)+1)}
	for k := range s.ids {
		next.ids[k] = struct{}{}
	}
	next.ids[id] = struct{}{}
	return next
}

// Len returns the number of ids in the set
func (s AssignedSet) Len() int { return len(s.ids) }

// IDs returns the ids in sorted order
func (s AssignedSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for k := range s.ids {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
