// Package geo resolves client IPs to coordinates and measures distances
// between them.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/curtisra-gif/cdn-geodns/internal/metrics"
	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

// DefaultProvider is the name Chain reports when every provider failed
// and the configured default location was used.
const DefaultProvider = "default"

var (
	ErrInvalidIP   = errors.New("invalid ip address")
	ErrRateLimited = errors.New("provider request budget exhausted")
	ErrNoLocation  = errors.New("provider returned no location")
)

// Locator looks up the coordinates of an IP address.
type Locator interface {
	Name() string
	Locate(ctx context.Context, ip net.IP) (model.Location, error)
}

// Chain tries each Locator in order and falls back to a fixed location
// when all of them fail. It never returns an error.
type Chain struct {
	locators []Locator
	fallback model.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewChain(fallback model.Location, logger *zap.Logger, m *metrics.Metrics, locators ...Locator) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		locators: locators,
		fallback: fallback,
		logger:   logger,
		metrics:  m,
	}
}

// Locate returns the location of ip and the name of the provider that
// produced it.
func (c *Chain) Locate(ctx context.Context, ipStr string) (model.Location, string) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		c.logger.Warn("cannot geolocate client, using default location",
			zap.String("client", ipStr), zap.Error(ErrInvalidIP))
		c.metrics.Geolocation(DefaultProvider, "used")
		return c.fallback, DefaultProvider
	}

	var errs []error
	for _, l := range c.locators {
		loc, err := l.Locate(ctx, ip)
		if err == nil {
			c.metrics.Geolocation(l.Name(), "success")
			return loc, l.Name()
		}
		c.metrics.Geolocation(l.Name(), "failure")
		c.logger.Debug("geolocation provider failed",
			zap.String("provider", l.Name()), zap.String("client", ipStr), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
	}

	c.logger.Warn("all geolocation providers failed, using default location",
		zap.String("client", ipStr), zap.Error(errors.Join(errs...)))
	c.metrics.Geolocation(DefaultProvider, "used")
	return c.fallback, DefaultProvider
}
