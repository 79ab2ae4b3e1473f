// Package tourtype assigns tour types from a configuration's classification
// rule.
package tourtype

import (
	"math"
	"sort"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
)

// Classify returns the tour type for a tour with the given average speed, and
// false when the configuration assigns none.
//
// In speed mode the vertex thresholds are inclusive lower bounds: the result is
// the vertex with the greatest threshold not above averageSpeed. A NaN speed
// has no type.
func Classify(averageSpeed float64, config *entities.ImportConfiguration) (entities.TourTypeID, bool) {
	if config == nil {
		return "", false
	}
	switch config.Mode() {
	case entities.ClassificationOneTypeForAll:
		id := config.OneTourType()
		return id, id != ""
	case entities.ClassificationBySpeed:
		return bySpeed(averageSpeed, config.SpeedVertices())
	default:
		return "", false
	}
}

// bySpeed expects vertices sorted ascending by threshold.
func bySpeed(averageSpeed float64, vertices []entities.SpeedVertex) (entities.TourTypeID, bool) {
	if math.IsNaN(averageSpeed) {
		return "", false
	}
	// first vertex whose threshold is above the speed
	above := sort.Search(len(vertices), func(i int) bool {
		return vertices[i].AverageSpeed > averageSpeed
	})
	if above == 0 {
		return "", false
	}
	return vertices[above-1].TourTypeID, true
}
