package geo

import (
	"math"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371008.8

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b model.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// clamp rounding noise for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}
