package lb

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/curtisra-gif/cdn-geodns/internal/geo"
	"github.com/curtisra-gif/cdn-geodns/internal/metrics"
	"github.com/curtisra-gif/cdn-geodns/internal/model"
	"github.com/curtisra-gif/cdn-geodns/internal/registry"
)

// Distances maps an edge server address to its distance from a client in
// meters. Maps returned by DistanceCache are shared and must not be modified.
type Distances map[string]float64

// ClientLocator resolves a client address to coordinates. geo.Chain
// satisfies it.
type ClientLocator interface {
	Locate(ctx context.Context, ip string) (model.Location, string)
}

type store interface {
	get(client string) (Distances, bool)
	put(client string, d Distances)
	len() int
}

type mapStore map[string]Distances

func (s mapStore) get(client string) (Distances, bool) {
	d, ok := s[client]
	return d, ok
}

func (s mapStore) put(client string, d Distances) { s[client] = d }

func (s mapStore) len() int { return len(s) }

type lruStore struct{ c *lru.Cache }

func (s lruStore) get(client string) (Distances, bool) {
	v, ok := s.c.Get(client)
	if !ok {
		return nil, false
	}
	return v.(Distances), true
}

func (s lruStore) put(client string, d Distances) { s.c.Add(client, d) }

func (s lruStore) len() int { return s.c.Len() }

// DistanceCache memoizes, per client address, the distance to every edge
// server. Entries never expire. With maxEntries > 0 the least recently
// used clients are evicted once the limit is reached.
type DistanceCache struct {
	registry *registry.Registry
	locator  ClientLocator
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries store
}

func NewDistanceCache(reg *registry.Registry, locator ClientLocator, maxEntries int, logger *zap.Logger, m *metrics.Metrics) (*DistanceCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &DistanceCache{
		registry: reg,
		locator:  locator,
		logger:   logger,
		metrics:  m,
		entries:  mapStore{},
	}
	if maxEntries > 0 {
		l, err := lru.New(maxEntries)
		if err != nil {
			return nil, err
		}
		c.entries = lruStore{c: l}
	}
	return c, nil
}

// Resolve returns the distances from client to every edge server, looking
// the client up at most once while its entry is cached. Concurrent misses
// for the same client may each perform a lookup; the last write wins with
// an equivalent result.
func (c *DistanceCache) Resolve(ctx context.Context, client string) Distances {
	c.mu.Lock()
	d, ok := c.entries.get(client)
	c.mu.Unlock()
	if ok {
		return d
	}

	loc, provider := c.locator.Locate(ctx, client)
	d = make(Distances, c.registry.Len())
	for _, s := range c.registry.All() {
		d[s.Key()] = geo.Distance(loc, s.Location)
	}
	c.logger.Debug("cached client distances",
		zap.String("client", client),
		zap.String("provider", provider),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lon", loc.Lon))

	c.mu.Lock()
	c.entries.put(client, d)
	n := c.entries.len()
	c.mu.Unlock()

	c.metrics.CacheEntries(n)
	return d
}

func (c *DistanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.len()
}
