package dns

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Server runs the authoritative listeners. UDP carries the bulk of the
// traffic; TCP exists so throttled clients can retry after a TC answer.
type Server struct {
	logger *zap.Logger
	udp    *dns.Server
	tcp    *dns.Server
}

func NewServer(addr string, handler dns.Handler, logger *zap.Logger) *Server {
	return &Server{
		logger: logger,
		udp:    &dns.Server{Addr: addr, Net: "udp", Handler: handler},
		tcp:    &dns.Server{Addr: addr, Net: "tcp", Handler: handler},
	}
}

// ListenAndServe starts both listeners and blocks until one fails.
func (s *Server) ListenAndServe() error {
	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("dns listener active", zap.String("addr", s.udp.Addr), zap.String("net", "udp"))
		errCh <- s.udp.ListenAndServe()
	}()
	go func() {
		s.logger.Info("dns listener active", zap.String("addr", s.tcp.Addr), zap.String("net", "tcp"))
		errCh <- s.tcp.ListenAndServe()
	}()
	if err := <-errCh; err != nil {
		return fmt.Errorf("dns server: %w", err)
	}
	return nil
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	uerr := s.udp.ShutdownContext(ctx)
	terr := s.tcp.ShutdownContext(ctx)
	if uerr != nil {
		return uerr
	}
	return terr
}
