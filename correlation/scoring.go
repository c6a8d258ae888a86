package correlation

import (
	"time"

	"github.com/amirphl/orochi-attribution/models"
)

// Score components
const (
	ItemMatchPoints    = 100
	CityMatchPoints    = 50
	RegionMatchPoints  = 35
	ProductMatchPoints = 30

	// FastItemMatchPoints is added to an item match whose click is at most a day old,
	// so an exact same-day item match grades high without any other signal
	FastItemMatchPoints = 10

	// HighConfidenceItemScore is the item-match score at which a match is graded high
	HighConfidenceItemScore = 130
)

// Elapsed-time thresholds shared by the time bonus and the confidence rules
const (
	SameDay   = 24 * time.Hour
	ThreeDays = 72 * time.Hour

	bonusSameDay   = 20
	bonusThreeDays = 10
	bonusLater     = 5
)

// TimeBonus rewards clicks that happened shortly before the order
func TimeBonus(elapsed time.Duration) int {
	switch {
	case elapsed <= SameDay:
		return bonusSameDay
	case elapsed <= ThreeDays:
		return bonusThreeDays
	default:
		return bonusLater
	}
}

// itemPoints is the item component of an item match, including the same-day boost
func itemPoints(elapsed time.Duration) int {
	if elapsed <= SameDay {
		return ItemMatchPoints + FastItemMatchPoints
	}
	return ItemMatchPoints
}

// itemConfidence grades an item match by its total score
func itemConfidence(score int) models.ConfidenceTier {
	if score >= HighConfidenceItemScore {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}

// locationConfidence grades a location/product match by which signals fired and how fast
func locationConfidence(city, region, product bool, elapsed time.Duration) models.ConfidenceTier {
	switch {
	case city && elapsed <= SameDay:
		return models.ConfidenceHigh
	case city,
		region && elapsed <= ThreeDays,
		product && elapsed <= ThreeDays:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
