// Package app wires the metas runtime: storage, event fan-out, the service
// layer and the HTTP listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/metas/internal/platform/logging"
	"github.com/louisbranch/metas/internal/platform/metrics"
	"github.com/louisbranch/metas/internal/platform/timeouts"
	"github.com/louisbranch/metas/internal/services/metas/api/httpapi"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/identity"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
	metasbadger "github.com/louisbranch/metas/internal/services/metas/storage/badger"
	metassqlite "github.com/louisbranch/metas/internal/services/metas/storage/sqlite"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config is the full runtime configuration.
type Config struct {
	Addr string
	// MetricsAddr, when set, serves /metrics on a dedicated listener in
	// addition to the API listener.
	MetricsAddr string

	StoreDriver string
	DBPath      string
	BadgerDir   string

	SigningKey string
	Issuer     string
	Audience   string

	AllowReopen bool
	Locale      string

	NATSURL     string
	NATSSubject string

	// AllowedOrigins limits the browser origins that may open the event
	// stream. Empty accepts any origin.
	AllowedOrigins []string

	Logger *zap.Logger
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver    string
	DBPath    string
	BadgerDir string
	Logger    *zap.Logger
}

// OpenStore opens the configured backend, creating its directory when needed.
func OpenStore(cfg StoreConfig) (storage.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = filepath.Join("data", "metas.db")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := metassqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case DriverBadger:
		dir := strings.TrimSpace(cfg.BadgerDir)
		if dir == "" {
			dir = filepath.Join("data", "metas-badger")
		}
		badgerCfg := metasbadger.DefaultConfig(dir)
		badgerCfg.Logger = cfg.Logger
		store, err := metasbadger.Open(badgerCfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Server hosts the metas HTTP API and owns its resources.
type Server struct {
	logger     *zap.Logger
	store      storage.Store
	broker     *events.Broker
	nats       *events.NATSPublisher
	api        *http.Server
	apiLn      net.Listener
	metricsSrv *http.Server
	metricsLn  net.Listener
}

// New opens storage, connects the event publishers and binds the listeners.
func New(cfg Config) (*Server, error) {
	logger := logging.OrNop(cfg.Logger)
	verifier, err := identity.NewVerifier(identity.Config{
		SigningKey: []byte(cfg.SigningKey),
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}

	store, err := OpenStore(StoreConfig{
		Driver:    cfg.StoreDriver,
		DBPath:    cfg.DBPath,
		BadgerDir: cfg.BadgerDir,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	s := &Server{logger: logger, store: store}

	m := metrics.New()
	s.broker = events.NewBroker(events.WithDropHook(m.EventDropped))
	publishers := events.Fanout{s.broker}
	if url := strings.TrimSpace(cfg.NATSURL); url != "" {
		s.nats, err = events.ConnectNATS(events.NATSConfig{
			URL:            url,
			SubjectPrefix:  cfg.NATSSubject,
			ConnectTimeout: timeouts.NATSConnect,
			Name:           "metas",
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		publishers = append(publishers, s.nats)
		logger.Info("publishing events to nats", zap.String("url", url), zap.String("subject", cfg.NATSSubject))
	}

	svc, err := service.New(service.Config{
		Store:   store,
		Events:  publishers,
		Policy:  result.Policy{AllowReopen: cfg.AllowReopen},
		Locale:  cfg.Locale,
		Logger:  logger.Named("service"),
		Metrics: m,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	api, err := httpapi.New(httpapi.Config{
		Service:        svc,
		Authenticator:  verifier,
		Broker:         s.broker,
		Metrics:        m,
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.apiLn, err = net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	s.api = &http.Server{Handler: api.Handler(), ReadHeaderTimeout: timeouts.ReadHeader}

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		s.metricsLn, err = net.Listen("tcp", addr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		s.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	}
	return s, nil
}

// Addr returns the API listener address.
func (s *Server) Addr() string {
	if s == nil || s.apiLn == nil {
		return ""
	}
	return s.apiLn.Addr().String()
}

// MetricsAddr returns the dedicated metrics listener address, if any.
func (s *Server) MetricsAddr() string {
	if s == nil || s.metricsLn == nil {
		return ""
	}
	return s.metricsLn.Addr().String()
}

// Run builds a server from cfg and serves until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs every listener until ctx is canceled or one of them fails, then
// shuts all of them down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("metas api listening", zap.String("addr", s.Addr()))
		return serveHTTP(s.api, s.apiLn)
	})
	if s.metricsSrv != nil {
		g.Go(func() error {
			s.logger.Info("metrics listening", zap.String("addr", s.MetricsAddr()))
			return serveHTTP(s.metricsSrv, s.metricsLn)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		// Websocket streams are hijacked and ignored by Shutdown; closing the
		// broker ends them.
		s.broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		err := s.api.Shutdown(shutdownCtx)
		if s.metricsSrv != nil {
			err = errors.Join(err, s.metricsSrv.Shutdown(shutdownCtx))
		}
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Close releases every resource the server owns. It is safe to call more
// than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.broker != nil {
		s.broker.Close()
	}
	if s.api != nil {
		_ = s.api.Close()
	}
	if s.apiLn != nil {
		_ = s.apiLn.Close()
	}
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Close()
	}
	if s.metricsLn != nil {
		_ = s.metricsLn.Close()
	}
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			s.logger.Warn("close nats", zap.Error(err))
		}
		s.nats = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close store", zap.Error(err))
		}
		s.store = nil
	}
}
