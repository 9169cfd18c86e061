package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/gateway"
)

// Server представляет HTTP сервер шлюза.
type Server struct {
	gateway gateway.Gateway
	limiter *IPRateLimiter
	router  *chi.Mux
	server  *http.Server
}

// Config конфигурация HTTP сервера.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Запросов в секунду с одного IP; 0 отключает ограничение.
	IngressRate  float64
	IngressBurst int
}

// NewServer создаёт новый HTTP сервер.
func NewServer(gateway gateway.Gateway, cfg Config) *Server {
	s := &Server{
		gateway: gateway,
	}

	if cfg.IngressRate > 0 {
		s.limiter = NewIPRateLimiter(cfg.IngressRate, cfg.IngressBurst, time.Minute)
	}

	s.router = s.setupRouter()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Swagger UI
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.healthCheck)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Use(middleware.RequestSize(maxBodySize))

			r.Post("/cargo", s.relayCargo)

			r.Route("/pohttp", func(r chi.Router) {
				r.Head("/", s.pohttpInfo)
				r.Get("/", s.pohttpInfo)
				r.Post("/", s.receiveParcel)
				r.Put("/", s.pohttpMethodNotAllowed)
				r.Delete("/", s.pohttpMethodNotAllowed)
				r.Patch("/", s.pohttpMethodNotAllowed)
			})
		})
	})

	return r
}

// Start запускает HTTP сервер.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}

// Router возвращает chi router (для тестов).
func (s *Server) Router() *chi.Mux {
	return s.router
}
