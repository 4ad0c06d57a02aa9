// Package server runs the diagnostic routes on HTTP and, optionally, HTTPS.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"esp32-testserver/internal/acme"
	"esp32-testserver/internal/certs"
	"esp32-testserver/internal/certwatch"
	"esp32-testserver/internal/common"
	"esp32-testserver/internal/config"
	"esp32-testserver/internal/fileutil"
	"esp32-testserver/internal/logger"
	"esp32-testserver/internal/routes"
)

type Server struct {
	config     *config.Config
	now        func() time.Time
	onListen   func(scheme string, addr net.Addr)
	router     *mux.Router
	challenges *acme.ChallengeStore
}

type Option func(*Server)

// WithClock replaces time.Now for the handlers.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithOnListen is called with each listener address once it is bound.
func WithOnListen(fn func(scheme string, addr net.Addr)) Option {
	return func(s *Server) { s.onListen = fn }
}

// New builds the route table. Nothing is bound until Run or Serve.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(requestID, logRequests, recoverPanics)
	r.NotFoundHandler = chain(http.NotFoundHandler())
	r.MethodNotAllowedHandler = chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))

	if cfg.TLSMode == config.TLSACME {
		s.challenges = acme.NewChallengeStore()
		s.challenges.Register(r)
	}
	routes.New(s.now).Register(r)

	s.router = r
	return s
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run binds the HTTP listener and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.config.PrivilegedPort() {
		logger.Warnf("Port %d is privileged; binding usually requires root or CAP_NET_BIND_SERVICE (set HTTP_PORT or --port to change it)", s.config.HTTPPort)
	}

	ln, err := net.Listen("tcp", s.config.HTTPAddr())
	if err != nil {
		return fmt.Errorf("binding HTTP listener on %s: %w", s.config.HTTPAddr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln and, when TLS is enabled, HTTPS on the configured
// address. It returns after both listeners have shut down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	httpServer := s.newHTTPServer()
	s.announce("http", ln.Addr())
	g.Go(func() error {
		return serve(func() error { return httpServer.Serve(ln) })
	})

	var httpsServer *http.Server
	if s.config.TLSEnabled() {
		var err error
		httpsServer, err = s.startTLS(gctx, g)
		if err != nil {
			cancel()
			s.shutdown(httpServer)
			g.Wait()
			return err
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(httpServer, httpsServer)
		return nil
	})

	return g.Wait()
}

func (s *Server) startTLS(ctx context.Context, g *errgroup.Group) (*http.Server, error) {
	paths := certs.Paths{Fs: fileutil.OS, CertPath: s.config.CertPath, KeyPath: s.config.KeyPath}

	switch s.config.TLSMode {
	case config.TLSSelfSigned:
		if _, err := certs.EnsureSelfSigned(paths, s.certificateHosts()); err != nil {
			return nil, fmt.Errorf("preparing self-signed certificate: %w", err)
		}
	case config.TLSACME:
		// The HTTP listener is already serving, so HTTP-01 challenges can be answered.
		client, err := acme.NewClient(s.config, paths, s.challenges)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureCertificate(ctx); err != nil {
			return nil, err
		}
		g.Go(func() error {
			client.RunRenewal(ctx, acme.RenewalInterval)
			return nil
		})
	}

	watcher, err := certwatch.New(s.config.CertPath, s.config.KeyPath)
	if err != nil {
		return nil, err
	}
	g.Go(func() error { return watcher.Run(ctx) })

	ln, err := net.Listen("tcp", s.config.HTTPSAddr())
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("binding HTTPS listener on %s: %w", s.config.HTTPSAddr(), err)
	}

	httpsServer := s.newHTTPServer()
	httpsServer.TLSConfig = watcher.TLSConfig()
	s.announce("https", ln.Addr())
	g.Go(func() error {
		return serve(func() error { return httpsServer.ServeTLS(ln, "", "") })
	})
	return httpsServer, nil
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

func (s *Server) announce(scheme string, addr net.Addr) {
	logger.Infof("Listening for %s on %s", scheme, addr)
	if s.onListen != nil {
		s.onListen(scheme, addr)
	}
}

// certificateHosts are the names a self-signed certificate is issued for.
func (s *Server) certificateHosts() []string {
	hosts := []string{s.config.Domain, "localhost"}
	if s.config.Host != "" && s.config.Host != "0.0.0.0" && s.config.Host != "::" {
		hosts = append(hosts, s.config.Host)
	}
	return append(hosts, common.LocalIPv4s()...)
}

func (s *Server) shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("Graceful shutdown incomplete: %v", err)
			srv.Close()
		}
	}
}

func serve(fn func() error) error {
	if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
