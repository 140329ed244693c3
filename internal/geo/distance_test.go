package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

func TestDistance(t *testing.T) {
	origin := model.Location{Lat: 0, Lon: 0}

	assert.Equal(t, 0.0, Distance(origin, origin))

	// one degree of arc on the equator
	assert.InDelta(t, 111195.08, Distance(origin, model.Location{Lat: 0, Lon: 1}), 1)

	newark := model.Location{Lat: 40.8229, Lon: -74.4592}
	london := model.Location{Lat: 51.5074, Lon: -0.1196}
	assert.InDelta(t, 5.6e6, Distance(newark, london), 5e4)
	assert.Equal(t, Distance(newark, london), Distance(london, newark))

	antipode := model.Location{Lat: 0, Lon: 180}
	assert.InDelta(t, 3.14159265*EarthRadius, Distance(origin, antipode), 1)
}

func TestDistanceOrdering(t *testing.T) {
	client := model.Location{Lat: 0, Lon: 1}
	a := model.Location{Lat: 0, Lon: 0}
	b := model.Location{Lat: 0, Lon: 10}

	assert.Less(t, Distance(client, a), Distance(client, b))
}
