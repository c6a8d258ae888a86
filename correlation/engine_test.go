package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type clickOpt func(*models.ClickRecord)

func withItem(id string) clickOpt {
	return func(c *models.ClickRecord) { c.ItemID = utils.ToPtr(id) }
}

func withLabel(label string) clickOpt {
	return func(c *models.ClickRecord) { c.ProductLabel = utils.ToPtr(label) }
}

func withCity(city string) clickOpt {
	return func(c *models.ClickRecord) { c.CityHint = utils.ToPtr(city) }
}

func withRegion(region string) clickOpt {
	return func(c *models.ClickRecord) { c.RegionHint = utils.ToPtr(region) }
}

func clickAt(id string, at time.Time, opts ...clickOpt) *models.ClickRecord {
	c := &models.ClickRecord{
		ClickID:     id,
		UserID:      "user-" + id,
		OriginalURL: "https://articulo.example.com/" + id,
		Clicked:     true,
		ClickedAt:   utils.ToPtr(at),
		CreatedAt:   at.Add(-time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func orderAt(id string, at time.Time, items ...models.OrderItem) models.Order {
	return models.Order{
		ID:          id,
		Status:      "paid",
		CreatedAt:   utils.ToPtr(at),
		Items:       items,
		TotalAmount: decimal.NewFromInt(499),
		PaidAmount:  decimal.NewFromInt(499),
		Currency:    "MXN",
		ShipmentID:  "ship-" + id,
	}
}

func item(id, title string) models.OrderItem {
	return models.OrderItem{ItemID: id, Title: title, Quantity: 1, UnitPrice: decimal.NewFromInt(499)}
}

func staticAddress(addr *models.ShipmentAddress) AddressResolver {
	return AddressResolverFunc(func(context.Context, models.Order) (*models.ShipmentAddress, error) {
		return addr, nil
	})
}

func TestEngine_ExactItemFastMatchIsHigh(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{
		clickAt("c1", t0, withItem("MLM-123456789"), withLabel("Audífonos inalámbricos")),
	}
	order := orderAt("o1", t0.Add(2*time.Hour), item("MLM123456789", "Audifonos Inalambricos Bluetooth"))

	res, assigned := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), nil)

	require.NotNil(t, res.Match)
	assert.Equal(t, "c1", res.Match.ClickID)
	assert.Equal(t, models.MatchMethodItem, res.Match.Method)
	assert.GreaterOrEqual(t, res.Match.Score, HighConfidenceItemScore)
	assert.Equal(t, models.ConfidenceHigh, res.Match.Confidence)
	assert.Equal(t, 160, res.Match.Score)
	assert.True(t, res.Match.Details.ProductMatched)
	assert.True(t, assigned.Has("c1"))
	assert.Equal(t, 1, res.CandidatesConsidered)
}

func TestEngine_ExactItemFastMatchWithoutLabelIsHigh(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withItem("MLM123456789"))}
	order := orderAt("o1", t0.Add(2*time.Hour), item("MLM123456789", "Licuadora"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), nil)

	require.NotNil(t, res.Match)
	assert.Equal(t, models.MatchMethodItem, res.Match.Method)
	assert.Equal(t, HighConfidenceItemScore, res.Match.Score)
	assert.Equal(t, models.ConfidenceHigh, res.Match.Confidence)
	assert.Equal(t, ItemMatchPoints+FastItemMatchPoints, res.Match.Details.ItemPoints)
	assert.Equal(t, 20, res.Match.Details.TimeBonus)
	assert.False(t, res.Match.Details.ProductMatched)
}

func TestEngine_ItemMatchWithoutLabelIsMedium(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withItem("MLM123456789"))}
	order := orderAt("o1", t0.Add(30*time.Hour), item("MLM123456789", "Licuadora"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), nil)

	require.NotNil(t, res.Match)
	assert.Equal(t, ItemMatchPoints+10, res.Match.Score)
	assert.Equal(t, models.ConfidenceMedium, res.Match.Confidence)
}

func TestEngine_LocationFallbackSameDay(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withCity("Querétaro"))}
	order := orderAt("o1", t0.Add(20*time.Hour), item("MLM999999999", "Cafetera"))
	resolver := staticAddress(&models.ShipmentAddress{City: "Queretaro", Region: "QRO"})

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), resolver)

	require.NotNil(t, res.Match)
	assert.Equal(t, models.MatchMethodLocation, res.Match.Method)
	assert.Equal(t, models.ConfidenceHigh, res.Match.Confidence)
	assert.Equal(t, CityMatchPoints+20, res.Match.Score)
	assert.True(t, res.Match.Details.CityMatched)
	require.NotNil(t, res.Match.Shipment)
	assert.Equal(t, "Queretaro", res.Match.Shipment.City)
}

func TestEngine_WeakProductSignalAfterFourDaysIsLow(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withLabel("cafetera espresso"))}
	order := orderAt("o1", t0.Add(100*time.Hour), item("MLM999999999", "Cafetera Espresso Oster"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), staticAddress(nil))

	require.NotNil(t, res.Match)
	assert.Equal(t, models.MatchMethodProduct, res.Match.Method)
	assert.Equal(t, models.ConfidenceLow, res.Match.Confidence)
	assert.Equal(t, ProductMatchPoints+5, res.Match.Score)
}

func TestEngine_NoSignalMeansNoMatch(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withCity("Monterrey"), withLabel("bicicleta"))}
	order := orderAt("o1", t0.Add(5*time.Hour), item("MLM999999999", "Cafetera"))
	resolver := staticAddress(&models.ShipmentAddress{City: "Puebla", Region: "Puebla"})

	res, assigned := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), resolver)

	assert.Nil(t, res.Match)
	assert.Equal(t, 1, res.CandidatesConsidered)
	assert.Equal(t, 0, assigned.Len())
}

func TestEngine_RegionMatchTiers(t *testing.T) {
	engine := NewEngine(0)
	resolver := staticAddress(&models.ShipmentAddress{City: "Santiago de Querétaro", Region: "Querétaro"})

	tests := []struct {
		name    string
		elapsed time.Duration
		want    models.ConfidenceTier
	}{
		{name: "within three days", elapsed: 50 * time.Hour, want: models.ConfidenceMedium},
		{name: "after three days", elapsed: 90 * time.Hour, want: models.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := []*models.ClickRecord{clickAt("c1", t0, withRegion("queretaro"))}
			order := orderAt("o1", t0.Add(tt.elapsed), item("MLM1", "Mesa"))

			res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), resolver)

			require.NotNil(t, res.Match)
			assert.True(t, res.Match.Details.RegionMatched)
			assert.False(t, res.Match.Details.CityMatched)
			assert.Equal(t, tt.want, res.Match.Confidence)
		})
	}
}

func TestEngine_CausalityExcludesLaterClicks(t *testing.T) {
	engine := NewEngine(0)
	created := t0.Add(10 * time.Hour)
	pool := []*models.ClickRecord{
		clickAt("same-instant", created, withItem("MLM123456")),
		clickAt("after", created.Add(time.Second), withItem("MLM123456")),
	}
	order := orderAt("o1", created, item("MLM123456", "Lampara"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), nil)

	assert.Nil(t, res.Match)
	assert.Equal(t, 0, res.CandidatesConsidered)
}

func TestEngine_WindowBoundary(t *testing.T) {
	engine := NewEngine(0)
	created := t0.Add(utils.AttributionWindow)

	inside := []*models.ClickRecord{clickAt("edge", t0, withItem("MLM123456"))}
	res, _ := engine.MatchOrder(context.Background(), orderAt("o1", created, item("MLM123456", "Lampara")), inside, NewAssignedSet(), nil)
	require.NotNil(t, res.Match)
	assert.Equal(t, "edge", res.Match.ClickID)
	assert.Equal(t, models.ConfidenceMedium, res.Match.Confidence)

	outside := []*models.ClickRecord{clickAt("late", t0.Add(-time.Second), withItem("MLM123456"))}
	res, _ = engine.MatchOrder(context.Background(), orderAt("o2", created, item("MLM123456", "Lampara")), outside, NewAssignedSet(), nil)
	assert.Nil(t, res.Match)
	assert.Equal(t, 0, res.CandidatesConsidered)
}

func TestEngine_ContentionPrefersMostRecentAndKeepsOtherAvailable(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{
		clickAt("early", t0, withItem("MLM555555")),
		clickAt("late", t0.Add(3*time.Hour), withItem("MLM555555")),
	}
	orders := []models.Order{
		orderAt("o1", t0.Add(4*time.Hour), item("MLM555555", "Silla")),
		orderAt("o2", t0.Add(5*time.Hour), item("MLM555555", "Silla")),
		orderAt("o3", t0.Add(6*time.Hour), item("MLM555555", "Silla")),
	}

	results, assigned := engine.Correlate(context.Background(), orders, pool, NewAssignedSet(), nil)

	require.Len(t, results, 3)
	require.NotNil(t, results[0].Match)
	require.NotNil(t, results[1].Match)
	assert.Equal(t, "late", results[0].Match.ClickID)
	assert.Equal(t, "early", results[1].Match.ClickID)
	assert.Nil(t, results[2].Match)
	assert.Equal(t, []string{"early", "late"}, assigned.IDs())
}

func TestEngine_InjectiveAcrossOrders(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{
		clickAt("c1", t0, withCity("Puebla")),
		clickAt("c2", t0.Add(time.Hour), withItem("MLM111111")),
	}
	orders := []models.Order{
		orderAt("o1", t0.Add(2*time.Hour), item("MLM111111", "Taza")),
		orderAt("o2", t0.Add(3*time.Hour), item("MLM222222", "Plato")),
		orderAt("o3", t0.Add(4*time.Hour), item("MLM333333", "Vaso")),
	}
	resolver := staticAddress(&models.ShipmentAddress{City: "Puebla"})

	results, assigned := engine.Correlate(context.Background(), orders, pool, NewAssignedSet(), resolver)

	seen := map[string]string{}
	for _, r := range results {
		if r.Match == nil {
			continue
		}
		prev, dup := seen[r.Match.ClickID]
		assert.False(t, dup, "click %s matched to %s and %s", r.Match.ClickID, prev, r.OrderID)
		seen[r.Match.ClickID] = r.OrderID
	}
	assert.Len(t, seen, 2)
	assert.Equal(t, 2, assigned.Len())
}

func TestEngine_SkipsAlreadyAssignedAndConverted(t *testing.T) {
	engine := NewEngine(0)
	converted := clickAt("converted", t0, withItem("MLM123456"))
	converted.Converted = true
	pool := []*models.ClickRecord{
		converted,
		clickAt("taken", t0.Add(time.Hour), withItem("MLM123456")),
	}
	order := orderAt("o1", t0.Add(2*time.Hour), item("MLM123456", "Lampara"))

	before := NewAssignedSet("taken")
	res, after := engine.MatchOrder(context.Background(), order, pool, before, nil)

	assert.Nil(t, res.Match)
	assert.Equal(t, 1, after.Len())
	assert.True(t, before.Has("taken"))
}

func TestEngine_DeterministicRegardlessOfPoolOrder(t *testing.T) {
	engine := NewEngine(0)
	a := clickAt("a", t0, withItem("MLM777777"))
	b := clickAt("b", t0, withItem("MLM777777"))
	order := orderAt("o1", t0.Add(time.Hour), item("MLM777777", "Reloj"))

	first, _ := engine.MatchOrder(context.Background(), order, []*models.ClickRecord{a, b}, NewAssignedSet(), nil)
	second, _ := engine.MatchOrder(context.Background(), order, []*models.ClickRecord{b, a}, NewAssignedSet(), nil)

	require.NotNil(t, first.Match)
	require.NotNil(t, second.Match)
	assert.Equal(t, first.Match.ClickID, second.Match.ClickID)
	assert.Equal(t, first.Match.Score, second.Match.Score)
	assert.Equal(t, first.Match.Details, second.Match.Details)
}

func TestEngine_MalformedOrderIsSkipped(t *testing.T) {
	engine := NewEngine(0)
	pool := []*models.ClickRecord{clickAt("c1", t0, withItem("MLM123456"))}

	noDate := orderAt("o1", t0, item("MLM123456", "Lampara"))
	noDate.CreatedAt = nil
	noItems := orderAt("o2", t0.Add(time.Hour))

	for _, o := range []models.Order{noDate, noItems} {
		res, assigned := engine.MatchOrder(context.Background(), o, pool, NewAssignedSet(), nil)
		assert.Equal(t, SkipMalformed, res.Skipped)
		assert.Nil(t, res.Match)
		assert.Equal(t, 0, assigned.Len())
	}
}

func TestEngine_ShipmentFailureFallsBackToProduct(t *testing.T) {
	engine := NewEngine(0)
	calls := 0
	resolver := AddressResolverFunc(func(context.Context, models.Order) (*models.ShipmentAddress, error) {
		calls++
		return nil, errors.New("upstream timeout")
	})
	pool := []*models.ClickRecord{
		clickAt("city-only", t0, withCity("Puebla")),
		clickAt("product", t0.Add(time.Hour), withLabel("taza ceramica")),
	}
	order := orderAt("o1", t0.Add(2*time.Hour), item("MLM1", "Taza Ceramica Blanca"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), resolver)

	require.Error(t, res.ShipmentErr)
	require.NotNil(t, res.Match)
	assert.Equal(t, "product", res.Match.ClickID)
	assert.Equal(t, models.MatchMethodProduct, res.Match.Method)
	assert.Equal(t, models.ConfidenceMedium, res.Match.Confidence)
	assert.Equal(t, 1, calls)
}

func TestEngine_ItemMatchDoesNotResolveShipment(t *testing.T) {
	engine := NewEngine(0)
	resolver := AddressResolverFunc(func(context.Context, models.Order) (*models.ShipmentAddress, error) {
		t.Fatal("shipment lookup not expected")
		return nil, nil
	})
	pool := []*models.ClickRecord{clickAt("c1", t0, withItem("MLM123456"))}
	order := orderAt("o1", t0.Add(time.Hour), item("MLM123456", "Lampara"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), resolver)

	require.NotNil(t, res.Match)
	assert.Nil(t, res.ShipmentErr)
}

func TestEngine_CustomStrategyOrder(t *testing.T) {
	engine := NewEngine(time.Hour, LocationProductStrategy{})
	pool := []*models.ClickRecord{clickAt("c1", t0, withItem("MLM123456"), withLabel("lampara"))}
	order := orderAt("o1", t0.Add(30*time.Minute), item("MLM123456", "Lampara de pie"))

	res, _ := engine.MatchOrder(context.Background(), order, pool, NewAssignedSet(), nil)

	require.NotNil(t, res.Match)
	assert.Equal(t, models.MatchMethodProduct, res.Match.Method)
	assert.Equal(t, time.Hour, engine.Window())
}
