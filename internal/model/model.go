package model

import "net"

// Location is a point on the globe in decimal degrees.
type Location struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// EdgeServer is one CDN node clients can be routed to. It is never
// mutated after the registry is built.
type EdgeServer struct {
	Address  net.IP
	Domain   string
	Location Location
}

// Key is the string form of the IPv4 address used to index health and
// distance maps.
func (e EdgeServer) Key() string {
	return e.Address.String()
}

// HealthState is the last observed availability and load of an edge server.
// Load is a utilization percentage in [0, 100].
type HealthState struct {
	Available bool
	Load      float64
}

// InitialHealth is the state every edge server starts in: assumed up and idle.
func InitialHealth() HealthState {
	return HealthState{Available: true}
}
