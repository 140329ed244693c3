package dns

import (
	"context"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/curtisra-gif/cdn-geodns/internal/metrics"
	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

// Selector picks the nearest eligible edge server for a client address.
type Selector interface {
	Best(ctx context.Context, client string) (model.EdgeServer, bool)
}

// Handler answers every query with the edge server chosen for the client,
// or with the fallback host when none is eligible.
type Handler struct {
	Selector Selector
	Fallback Fallback
	UseECS   bool
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clientIP := extractClientIP(w, r, h.UseECS)
	reqLogger := logger.With(
		zap.String("remote_addr", clientIP),
		zap.Uint16("msg_id", r.Id),
	)

	defer func() {
		if rec := recover(); rec != nil {
			h.Metrics.HandlerPanic()
			reqLogger.Error("query handler panicked, answering with fallback", zap.Any("panic", rec))
			_ = w.WriteMsg(NewFallbackAnswer(r, h.Fallback))
		}
	}()

	var m *dns.Msg
	if edge, ok := h.Selector.Best(context.Background(), clientIP); ok {
		reqLogger.Debug("routing query",
			zap.Stringer("edge", edge.Address), zap.String("domain", edge.Domain))
		h.Metrics.Query("edge")
		m = NewAnswer(r, edge.Domain, edge.Address)
	} else {
		reqLogger.Warn("no eligible edge server, answering with fallback",
			zap.Stringer("fallback", h.Fallback.Address))
		h.Metrics.Query("fallback")
		m = NewFallbackAnswer(r, h.Fallback)
	}

	if err := w.WriteMsg(m); err != nil {
		reqLogger.Warn("failed to write answer", zap.Error(err))
	}
}

// extractClientIP returns the query source address without its port, or
// the EDNS client subnet address when useECS is set and one is present.
func extractClientIP(w dns.ResponseWriter, r *dns.Msg, useECS bool) string {
	if useECS {
		if opt := r.IsEdns0(); opt != nil {
			for _, o := range opt.Option {
				if ecs, ok := o.(*dns.EDNS0_SUBNET); ok && ecs.Address != nil {
					return ecs.Address.String()
				}
			}
		}
	}
	addr := w.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
