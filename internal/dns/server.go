// Package dns serves the balancer over UDP.
package dns

import (
	"context"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server runs the receive loop. Every datagram is decoded and handled on
// its own goroutine; a datagram that fails to decode only affects itself.
type Server struct {
	Addr    string
	Handler dns.Handler
	Logger  *zap.Logger
}

// ListenAndServe binds Addr and serves until ctx is cancelled. A bind
// failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &dns.Server{Addr: s.Addr, Net: "udp", Handler: s.Handler}
	return s.run(ctx, srv, srv.ListenAndServe)
}

// Serve answers queries arriving on pc until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, pc net.PacketConn) error {
	srv := &dns.Server{PacketConn: pc, Net: "udp", Handler: s.Handler}
	return s.run(ctx, srv, srv.ActivateAndServe)
}

func (s *Server) run(ctx context.Context, srv *dns.Server, serve func() error) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	started := make(chan struct{})
	stopped := make(chan struct{})
	srv.NotifyStartedFunc = func() {
		logger.Info("dns server listening", zap.String("addr", listenAddr(srv)))
		close(started)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(stopped)
		return serve()
	})
	group.Go(func() error {
		<-ctx.Done()
		select {
		case <-started:
			logger.Info("dns server shutting down")
			return srv.Shutdown()
		case <-stopped:
			return nil
		}
	})
	return group.Wait()
}

func listenAddr(srv *dns.Server) string {
	if srv.PacketConn != nil {
		return srv.PacketConn.LocalAddr().String()
	}
	return srv.Addr
}
