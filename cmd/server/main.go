package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/curtisra-gif/cdn-geodns/internal/config"
	gdns "github.com/curtisra-gif/cdn-geodns/internal/dns"
	"github.com/curtisra-gif/cdn-geodns/internal/geo"
	"github.com/curtisra-gif/cdn-geodns/internal/health"
	"github.com/curtisra-gif/cdn-geodns/internal/lb"
	"github.com/curtisra-gif/cdn-geodns/internal/metrics"
	"github.com/curtisra-gif/cdn-geodns/internal/registry"
)

func newLogger(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func buildLocators(cfg *config.Config, logger *zap.Logger) ([]geo.Locator, error) {
	var locators []geo.Locator
	for _, p := range cfg.Geolocation.Providers {
		opts := geo.HTTPOptions{
			BaseURL:       p.URL,
			Timeout:       cfg.Geolocation.Timeout,
			RatePerMinute: p.RatePerMinute,
		}
		switch p.Kind {
		case config.ProviderIPAPI:
			locators = append(locators, geo.NewIPAPI(opts))
		case config.ProviderFreeGeoIP:
			locators = append(locators, geo.NewFreeGeoIP(opts))
		case config.ProviderMaxMind:
			l, err := geo.NewMaxMindLocator(p.DBPath)
			if err != nil {
				return nil, err
			}
			locators = append(locators, l)
		}
		logger.Info("geolocation provider enabled", zap.String("kind", p.Kind))
	}
	return locators, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	logger, err := newLogger("info", false)
	if err != nil {
		panic(err)
	}

	cfg := config.Default()
	if _, statErr := os.Stat(*configPath); statErr == nil {
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	} else {
		logger.Warn("config file not found, using defaults", zap.String("path", *configPath))
	}

	if logger, err = newLogger(cfg.Log.Level, cfg.Log.Development); err != nil {
		panic(err)
	}
	defer logger.Sync() // Flushes buffer before exit

	edges, err := cfg.Edges()
	if err != nil {
		logger.Fatal("invalid edge servers", zap.Error(err))
	}
	reg, err := registry.New(edges)
	if err != nil {
		logger.Fatal("invalid edge servers", zap.Error(err))
	}

	m := metrics.New()

	locators, err := buildLocators(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open geolocation database", zap.Error(err))
	}
	chain := geo.NewChain(cfg.Server.Location, logger.Named("geo"), m, locators...)

	cache, err := lb.NewDistanceCache(reg, chain, cfg.DistanceCache.MaxEntries, logger.Named("cache"), m)
	if err != nil {
		logger.Fatal("failed to create distance cache", zap.Error(err))
	}
	table := health.NewTable(reg.Addresses())
	selector := lb.NewSelector(reg, table, cache, cfg.Health.MaxLoad)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	prober := health.NewHTTPProber(cfg.ProbePort(), cfg.Health.Path, cfg.Health.Timeout)
	waitMonitors := health.StartMonitors(ctx, reg, table, prober,
		health.WithInterval(cfg.Health.Interval),
		health.WithLogger(logger.Named("health")),
		health.WithMetrics(m),
	)
	group.Go(func() error {
		waitMonitors()
		return nil
	})

	if cfg.Metrics.ListenAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	server := &gdns.Server{
		Addr: cfg.ListenAddr(),
		Handler: &gdns.Handler{
			Selector: selector,
			Fallback: gdns.Fallback{Address: cfg.FallbackIP(), Hostname: cfg.Fallback.Hostname},
			UseECS:   cfg.Server.UseECS,
			Logger:   logger.Named("dns"),
			Metrics:  m,
		},
		Logger: logger,
	}
	group.Go(func() error {
		return server.ListenAndServe(ctx)
	})

	logger.Info("GeoDNS balancer starting",
		zap.String("addr", cfg.ListenAddr()),
		zap.Int("edge_servers", reg.Len()),
		zap.Int("probe_port", cfg.ProbePort()))

	if err := group.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
