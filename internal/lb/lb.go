// Package lb picks the edge servers a client should be sent to: healthy,
// not overloaded, and nearest first.
package lb

import (
	"context"
	"sort"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
	"github.com/curtisra-gif/cdn-geodns/internal/registry"
)

// DefaultMaxLoad is the load percentage above which an edge server is
// skipped.
const DefaultMaxLoad = 90.0

// HealthReader gives a point-in-time copy of every edge server's health.
type HealthReader interface {
	Snapshot() map[string]model.HealthState
}

type Candidate struct {
	Distance float64
	Address  string
}

type Selector struct {
	registry *registry.Registry
	health   HealthReader
	cache    *DistanceCache
	maxLoad  float64
}

func NewSelector(reg *registry.Registry, health HealthReader, cache *DistanceCache, maxLoad float64) *Selector {
	if maxLoad <= 0 {
		maxLoad = DefaultMaxLoad
	}
	return &Selector{registry: reg, health: health, cache: cache, maxLoad: maxLoad}
}

// Select returns the eligible edge servers for client ordered by
// ascending distance. The result is empty when every server is down or
// overloaded.
func (s *Selector) Select(ctx context.Context, client string) []Candidate {
	distances := s.cache.Resolve(ctx, client)
	states := s.health.Snapshot()

	candidates := make([]Candidate, 0, s.registry.Len())
	for _, addr := range s.registry.Addresses() {
		st, ok := states[addr]
		if !ok {
			st = model.InitialHealth()
		}
		if !st.Available || st.Load > s.maxLoad {
			continue
		}
		d, ok := distances[addr]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Distance: d, Address: addr})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates
}

// Best returns the nearest eligible edge server.
func (s *Selector) Best(ctx context.Context, client string) (model.EdgeServer, bool) {
	c := s.Select(ctx, client)
	if len(c) == 0 {
		return model.EdgeServer{}, false
	}
	return s.registry.Get(c[0].Address)
}
