package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/curtisra-gif/cdn-geodns/internal/metrics"
	"github.com/curtisra-gif/cdn-geodns/internal/model"
	"github.com/curtisra-gif/cdn-geodns/internal/registry"
)

const DefaultInterval = 5 * time.Second

// Monitor probes one edge server on a fixed interval and owns that
// server's entry in the Table.
type Monitor struct {
	server   model.EdgeServer
	table    *Table
	prober   Prober
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

func newMonitor(server model.EdgeServer, table *Table, prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		server:   server,
		table:    table,
		prober:   prober,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("edge", server.Key()), zap.String("domain", server.Domain))
	return m
}

// StartMonitors launches one Monitor per registered edge server. The
// returned function blocks until all of them have stopped, which happens
// once ctx is cancelled.
func StartMonitors(ctx context.Context, reg *registry.Registry, table *Table, prober Prober, opts ...Option) (wait func()) {
	var wg sync.WaitGroup
	for _, s := range reg.All() {
		m := newMonitor(s, table, prober, opts...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}
	return wg.Wait
}

// Run probes immediately and then once per interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Debug("monitor started", zap.Duration("interval", m.interval))
	for {
		m.check(ctx)
		select {
		case <-ctx.Done():
			m.logger.Debug("monitor stopped")
			return
		case <-m.clock.After(m.interval):
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	body, err := m.prober.Probe(ctx, m.server)
	if ctx.Err() != nil {
		return
	}
	addr := m.server.Key()

	if err != nil {
		prev, cur := m.table.markDown(addr)
		m.metrics.Probe(addr, "unreachable", cur.Available, cur.Load)
		if prev.Available {
			m.logger.Warn("edge server down", zap.Error(err))
		} else {
			m.logger.Debug("edge server still down", zap.Error(err))
		}
		return
	}

	prev, cur, parsed := m.table.markUp(addr, body)
	if !parsed {
		m.metrics.Probe(addr, "bad_body", cur.Available, cur.Load)
		m.logger.Debug("unparsable usage report, keeping last load",
			zap.String("body", body), zap.Float64("load", cur.Load))
	} else {
		m.metrics.Probe(addr, "ok", cur.Available, cur.Load)
	}
	if !prev.Available {
		m.logger.Info("edge server back up", zap.Float64("load", cur.Load))
	}
}
