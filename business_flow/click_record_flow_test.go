package businessflow

import (
	"context"
	"errors"
	"testing"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/app/services"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	testingutil "github.com/amirphl/orochi-attribution/testing"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequenceIDs struct {
	ids []string
	n   int
}

func (s *sequenceIDs) NewClickID() string {
	id := s.ids[s.n%len(s.ids)]
	s.n++
	return id
}

// failingClickRepo fails every insert
type failingClickRepo struct {
	repository.ClickRecordRepository
}

func (failingClickRepo) Save(context.Context, *models.ClickRecord) error {
	return errors.New("connection refused")
}

func newClickRecordFlowForTest(t *testing.T, ids ...string) (*ClickRecordFlowImpl, *testingutil.TestFixtures) {
	t.Helper()
	tdb := testingutil.SetupSQLiteDB(t)

	var gen services.ClickIDGenerator
	if len(ids) > 0 {
		gen = &sequenceIDs{ids: ids}
	} else {
		g, err := services.NewClickIDGenerator(1)
		require.NoError(t, err)
		gen = g
	}

	flow, err := NewClickRecordFlow(repository.NewClickRecordRepository(tdb.DB), gen, testAttributionConfig())
	require.NoError(t, err)
	return flow.(*ClickRecordFlowImpl), testingutil.NewTestFixtures(tdb)
}

func TestClickRecordFlow_Record(t *testing.T) {
	flow, fixtures := newClickRecordFlowForTest(t, "AbC123")

	resp, err := flow.Record(context.Background(), &dto.RecordClickRequest{
		UserID:          " wa-5215512345678 ",
		OriginalURL:     "https://articulo.mercadolibre.com.mx/MLM-123456789-audifonos-bluetooth-_JM",
		ProductLabel:    utils.ToPtr("Audífonos bluetooth"),
		CampaignID:      utils.ToPtr("camp-7"),
		Channel:         utils.ToPtr("  "),
		CampaignContext: map[string]string{"utm_source": "whatsapp", " ": "dropped"},
		CityHint:        utils.ToPtr("Monterrey"),
	})
	require.NoError(t, err)

	assert.Equal(t, "AbC123", resp.ClickID)
	assert.Equal(t, "https://go.example.com/r/AbC123", resp.TrackedURL)
	require.NotNil(t, resp.ItemID)
	assert.Equal(t, "MLM123456789", *resp.ItemID)

	stored, err := fixtures.ReloadClick("AbC123")
	require.NoError(t, err)
	assert.Equal(t, "wa-5215512345678", stored.UserID)
	assert.Equal(t, models.ClickStatusPending, stored.Status())
	assert.False(t, stored.Clicked)
	assert.Nil(t, stored.ClickedAt)
	assert.Nil(t, stored.Channel, "blank optional fields are stored as null")
	assert.Equal(t, models.CampaignContext{"utm_source": "whatsapp"}, stored.CampaignContext)
	require.NotNil(t, stored.CityHint)
	assert.Equal(t, "Monterrey", *stored.CityHint)
}

func TestClickRecordFlow_Record_ExplicitItemWins(t *testing.T) {
	flow, _ := newClickRecordFlowForTest(t, "x1")

	resp, err := flow.Record(context.Background(), &dto.RecordClickRequest{
		UserID:      "u1",
		OriginalURL: "https://articulo.mercadolibre.com.mx/MLM-123456789-audifonos",
		ItemID:      utils.ToPtr("mla-987654321"),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ItemID)
	assert.Equal(t, "MLA987654321", *resp.ItemID)
}

func TestClickRecordFlow_Record_Validation(t *testing.T) {
	flow, _ := newClickRecordFlowForTest(t)
	ctx := context.Background()

	_, err := flow.Record(ctx, nil)
	assert.True(t, IsUserIDRequired(err))

	_, err = flow.Record(ctx, &dto.RecordClickRequest{OriginalURL: "https://example.com"})
	assert.True(t, IsUserIDRequired(err))

	for _, raw := range []string{"", "not a url", "/relative/path", "ftp://example.com/file", "https://"} {
		_, err = flow.Record(ctx, &dto.RecordClickRequest{UserID: "u1", OriginalURL: raw})
		assert.True(t, IsInvalidDestinationURL(err), "url %q", raw)
	}
}

func TestClickRecordFlow_Record_StoreFailure(t *testing.T) {
	flow, err := NewClickRecordFlow(failingClickRepo{}, &sequenceIDs{ids: []string{"x"}}, testAttributionConfig())
	require.NoError(t, err)

	_, err = flow.Record(context.Background(), &dto.RecordClickRequest{UserID: "u1", OriginalURL: "https://example.com/p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClickStoreNotAvailable)
	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "CLICK_RECORD_FAILED", be.Code)
}

func TestClickRecordFlow_Record_GeneratesDistinctIDs(t *testing.T) {
	flow, _ := newClickRecordFlowForTest(t)
	seen := map[string]bool{}
	for range 20 {
		resp, err := flow.Record(context.Background(), &dto.RecordClickRequest{UserID: "u1", OriginalURL: "https://example.com/p"})
		require.NoError(t, err)
		assert.False(t, seen[resp.ClickID], "duplicate id %s", resp.ClickID)
		seen[resp.ClickID] = true
	}
}

func TestClickRecordFlow_ExtractItemID(t *testing.T) {
	flow, _ := newClickRecordFlowForTest(t)

	tests := []struct {
		url  string
		want string
	}{
		{"https://articulo.mercadolibre.com.mx/MLM-123456789-audifonos-_JM", "MLM123456789"},
		{"https://www.mercadolibre.com.ar/p/MLA12345678", "MLA12345678"},
		{"https://listado.mercadolibre.com.mx/mlm-1234567", "MLM1234567"},
		{"https://example.com/go?u=https%3A%2F%2Farticulo.mercadolibre.com.mx%2FMLM-123456789", "MLM123456789"},
		{"https://example.com/product/12345", ""},
		{"https://articulo.mercadolibre.com.mx/MLM-12345", ""},
	}
	for _, tt := range tests {
		got := flow.ExtractItemID(tt.url)
		if tt.want == "" {
			assert.Nil(t, got, tt.url)
			continue
		}
		require.NotNil(t, got, tt.url)
		assert.Equal(t, tt.want, *got, tt.url)
	}
}

func TestNewClickRecordFlow_InvalidPattern(t *testing.T) {
	cfg := testAttributionConfig()
	cfg.ItemIDPattern = "(["
	_, err := NewClickRecordFlow(nil, &sequenceIDs{ids: []string{"x"}}, cfg)
	assert.Error(t, err)
}

func TestClickRecordFlow_GetClick(t *testing.T) {
	flow, fixtures := newClickRecordFlowForTest(t)
	_, err := fixtures.CreateTestClick("k1", testingutil.WithItem("MLM123456789"))
	require.NoError(t, err)

	out, err := flow.GetClick(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", out.ClickID)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, "https://go.example.com/r/k1", out.TrackedURL)

	_, err = flow.GetClick(context.Background(), "missing")
	assert.True(t, IsClickNotFound(err))

	_, err = flow.GetClick(context.Background(), " ")
	assert.True(t, IsClickIDRequired(err))
}
