package correlation

import (
	"testing"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Querétaro", want: "queretaro"},
		{in: "  San Luis   Potosí, S.L.P. ", want: "san luis potosi s l p"},
		{in: "MÉXICO D.F.", want: "mexico d f"},
		{in: "Nuevo-León", want: "nuevo leon"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestTokensDropsShortAndStopWords(t *testing.T) {
	assert.Equal(t, []string{"funda", "iphone"}, Tokens("Funda para iPhone 15 de la FUNDA"))
}

func TestProductOverlap(t *testing.T) {
	tests := []struct {
		name  string
		label string
		title string
		want  bool
	}{
		{name: "accents ignored", label: "Cámara instantánea", title: "Camara Instantanea Fujifilm Mini", want: true},
		{name: "half of label tokens", label: "tenis running nike", title: "Tenis Adidas Running", want: true},
		{name: "less than half", label: "tenis running nike mujer", title: "Tenis Adidas", want: false},
		{name: "empty label", label: "", title: "Tenis", want: false},
		{name: "only stop words", label: "para con", title: "para con", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProductOverlap(tt.label, tt.title))
		})
	}
}

func TestNormalizeItemID(t *testing.T) {
	assert.Equal(t, "MLM123456789", NormalizeItemID(" mlm-123456789 "))
	assert.Equal(t, "MLA42", NormalizeItemID("MLA_42"))
}

func TestTimeBonus(t *testing.T) {
	assert.Equal(t, 20, TimeBonus(24*time.Hour))
	assert.Equal(t, 10, TimeBonus(24*time.Hour+time.Second))
	assert.Equal(t, 10, TimeBonus(72*time.Hour))
	assert.Equal(t, 5, TimeBonus(72*time.Hour+time.Second))
}

func TestLocationConfidence(t *testing.T) {
	tests := []struct {
		name                  string
		city, region, product bool
		elapsed               time.Duration
		want                  models.ConfidenceTier
	}{
		{name: "city same day", city: true, elapsed: 3 * time.Hour, want: models.ConfidenceHigh},
		{name: "city later", city: true, elapsed: 100 * time.Hour, want: models.ConfidenceMedium},
		{name: "region quick", region: true, elapsed: 48 * time.Hour, want: models.ConfidenceMedium},
		{name: "product quick", product: true, elapsed: 10 * time.Hour, want: models.ConfidenceMedium},
		{name: "product slow", product: true, elapsed: 100 * time.Hour, want: models.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, locationConfidence(tt.city, tt.region, tt.product, tt.elapsed))
		})
	}
}
