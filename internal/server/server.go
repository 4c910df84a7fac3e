package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"employee-portal/internal/db"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// Database is the part of the shared pool the server needs directly.
type Database interface {
	Ping(ctx context.Context) error
	Stats() db.PoolStats
}

// EmployeeLister reads the employee roster.
type EmployeeLister interface {
	List(ctx context.Context) ([]db.Employee, error)
}

// FruitStore backs the fruit stand widget.
type FruitStore interface {
	List(ctx context.Context) ([]db.Fruit, error)
	Pick(ctx context.Context, fruitID int, picker string) (db.FruitPick, error)
	Favorites(ctx context.Context, limit int) ([]db.FruitCount, error)
}

type Config struct {
	Addr      string // e.g. ":5000"
	Build     BuildInfo
	DB        Database
	Employees EmployeeLister
	Fruits    FruitStore
	Assets    Assets

	// PickRateLimit caps fruit picks per client IP per minute. Zero disables it.
	PickRateLimit int
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only set it when a reverse proxy in front overwrites those headers.
	TrustProxy bool
}

type Server struct {
	cfg        Config
	httpServer *http.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// [realIP] -> requestID -> logging -> recover -> headers -> gzip -> handler
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(CompressionMiddleware)

	r.Get("/", s.HandleHome)
	r.Get("/get-started", HandleGetStarted)
	if s.cfg.Assets != nil {
		r.Handle("/images/*", s.cfg.Assets)
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)

	var poolStats func() db.PoolStats
	if s.cfg.DB != nil {
		poolStats = s.cfg.DB.Stats
	}
	r.Get("/metrics", NewPrometheusExporter(s.cfg.Build.Version, poolStats).Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/employees", s.HandleListEmployees)
		api.Route("/fruits", func(fr chi.Router) {
			fr.Get("/", s.HandleListFruits)
			picks := fr.With()
			if s.cfg.PickRateLimit > 0 {
				picks = fr.With(newRateLimiter(s.cfg.PickRateLimit, time.Minute).middleware)
			}
			picks.Post("/picks", s.HandlePickFruit)
			fr.Get("/favorites", s.HandleFavorites)
		})
	})

	return r
}

// Handler exposes the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
