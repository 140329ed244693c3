package geo

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

// MaxMindLocator resolves locations from a local GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	db *geoip2.Reader
}

func NewMaxMindLocator(dbPath string) (*MaxMindLocator, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &MaxMindLocator{db: db}, nil
}

func (m *MaxMindLocator) Name() string {
	return "maxmind"
}

func (m *MaxMindLocator) Locate(_ context.Context, ip net.IP) (model.Location, error) {
	record, err := m.db.City(ip)
	if err != nil {
		return model.Location{}, err
	}
	// the database has no coordinates for reserved and unknown ranges
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return model.Location{}, ErrNoLocation
	}
	return model.Location{Lat: record.Location.Latitude, Lon: record.Location.Longitude}, nil
}

func (m *MaxMindLocator) Close() error {
	return m.db.Close()
}
