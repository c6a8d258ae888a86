package correlation

import (
	"context"
	"time"

	"github.com/amirphl/orochi-attribution/models"
)

// Strategy is one matching heuristic. The engine runs strategies in order and
// keeps the first match.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) *Match
}

// Candidate is an eligible click together with its distance to the order
type Candidate struct {
	Click   *models.ClickRecord
	Elapsed time.Duration
}

// Match is the winning click for an order
type Match struct {
	ClickID    string
	Method     models.MatchMethod
	Confidence models.ConfidenceTier
	Score      int
	Details    models.MatchDetails
	ItemID     string
	Elapsed    time.Duration
	Shipment   *models.ShipmentAddress
}

// Input is what a strategy sees for one order
type Input struct {
	Order      models.Order
	CreatedAt  time.Time
	Candidates []Candidate

	resolver    AddressResolver
	resolved    bool
	shipment    *models.ShipmentAddress
	shipmentErr error
}

// Shipment resolves the order's shipment address at most once
func (in *Input) Shipment(ctx context.Context) (*models.ShipmentAddress, error) {
	if in.resolved {
		return in.shipment, in.shipmentErr
	}
	in.resolved = true
	if in.resolver == nil || in.Order.ShipmentID == "" {
		return nil, nil
	}
	in.shipment, in.shipmentErr = in.resolver.ShipmentAddress(ctx, in.Order)
	if in.shipmentErr != nil {
		in.shipment = nil
	}
	return in.shipment, in.shipmentErr
}

// newer orders candidates by recency, then by click id for a stable result
func newer(a, b Candidate) bool {
	if a.Elapsed != b.Elapsed {
		return a.Elapsed < b.Elapsed
	}
	return a.Click.ClickID < b.Click.ClickID
}

// ItemMatchStrategy attributes an order to the most recent click on one of its items
type ItemMatchStrategy struct{}

func (ItemMatchStrategy) Name() string { return string(models.MatchMethodItem) }

func (ItemMatchStrategy) Evaluate(_ context.Context, in *Input) *Match {
	items := make(map[string]models.OrderItem, len(in.Order.Items))
	for _, it := range in.Order.Items {
		if id := NormalizeItemID(it.ItemID); id != "" {
			items[id] = it
		}
	}
	if len(items) == 0 {
		return nil
	}

	var (
		best     *Candidate
		bestItem models.OrderItem
	)
	for i := range in.Candidates {
		c := in.Candidates[i]
		if c.Click.ItemID == nil {
			continue
		}
		item, ok := items[NormalizeItemID(*c.Click.ItemID)]
		if !ok {
			continue
		}
		if best == nil || newer(c, *best) {
			best = &c
			bestItem = item
		}
	}
	if best == nil {
		return nil
	}

	details := models.MatchDetails{
		ItemMatch:      true,
		MatchedItemID:  bestItem.ItemID,
		ElapsedHours:   best.Elapsed.Hours(),
		ElapsedSeconds: int64(best.Elapsed / time.Second),
		ItemPoints:     itemPoints(best.Elapsed),
		TimeBonus:      TimeBonus(best.Elapsed),
	}
	if best.Click.ProductLabel != nil && ProductOverlap(*best.Click.ProductLabel, bestItem.Title) {
		details.ProductMatched = true
		details.ProductPoints = ProductMatchPoints
	}
	details.Total = details.ItemPoints + details.ProductPoints + details.TimeBonus

	return &Match{
		ClickID:    best.Click.ClickID,
		Method:     models.MatchMethodItem,
		Confidence: itemConfidence(details.Total),
		Score:      details.Total,
		Details:    details,
		ItemID:     bestItem.ItemID,
		Elapsed:    best.Elapsed,
	}
}

// LocationProductStrategy scores clicks by shipment location and product wording.
// A click needs at least one positive signal to qualify.
type LocationProductStrategy struct{}

func (LocationProductStrategy) Name() string { return "location_product" }

func (LocationProductStrategy) Evaluate(ctx context.Context, in *Input) *Match {
	var city, region string
	if addr, err := in.Shipment(ctx); err == nil && addr != nil {
		city = NormalizeText(addr.City)
		region = NormalizeText(addr.Region)
	}
	titles := in.Order.Titles()

	var (
		best        *Candidate
		bestDetails models.MatchDetails
	)
	for i := range in.Candidates {
		c := in.Candidates[i]
		click := c.Click

		cityOK := sameLocation(click.CityHint, city)
		regionOK := !cityOK && (sameLocation(click.RegionHint, region) || sameLocation(click.CityHint, region))
		productOK := click.ProductLabel != nil && ProductOverlap(*click.ProductLabel, titles)
		if !cityOK && !regionOK && !productOK {
			continue
		}

		d := models.MatchDetails{
			CityMatched:    cityOK,
			RegionMatched:  regionOK,
			ProductMatched: productOK,
			ElapsedHours:   c.Elapsed.Hours(),
			ElapsedSeconds: int64(c.Elapsed / time.Second),
			TimeBonus:      TimeBonus(c.Elapsed),
		}
		switch {
		case cityOK:
			d.LocationPoints = CityMatchPoints
		case regionOK:
			d.LocationPoints = RegionMatchPoints
		}
		if productOK {
			d.ProductPoints = ProductMatchPoints
		}
		d.Total = d.LocationPoints + d.ProductPoints + d.TimeBonus

		if best == nil || d.Total > bestDetails.Total || (d.Total == bestDetails.Total && newer(c, *best)) {
			best = &c
			bestDetails = d
		}
	}
	if best == nil {
		return nil
	}

	method := models.MatchMethodProduct
	if bestDetails.CityMatched || bestDetails.RegionMatched {
		method = models.MatchMethodLocation
	}

	return &Match{
		ClickID: best.Click.ClickID,
		Method:  method,
		Confidence: locationConfidence(
			bestDetails.CityMatched,
			bestDetails.RegionMatched,
			bestDetails.ProductMatched,
			best.Elapsed,
		),
		Score:    bestDetails.Total,
		Details:  bestDetails,
		Elapsed:  best.Elapsed,
		Shipment: in.shipment,
	}
}
