// Package api provides the HTTP API server and handlers for the darkscore server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/search"
	"github.com/darkscore/darkscore-server/internal/service"
	"github.com/darkscore/darkscore-server/internal/sse"
	"github.com/darkscore/darkscore-server/internal/store"
)

// Deps groups what the API server needs.
type Deps struct {
	Store       store.Store
	Sessions    *service.SessionManager
	Search      *search.SearchIndex // optional
	SSEManager  *sse.Manager
	SSEHandler  *sse.Handler
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store             store.Store
	matches           *store.Collection[domain.Match]
	sessions          *service.SessionManager
	search            *search.SearchIndex
	sseManager        *sse.Manager
	sseHandler        *sse.Handler
	router            *chi.Mux
	api               huma.API
	logger            *slog.Logger
	authRateLimiter   *RateLimiter
	inviteRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps) *Server {
	s := &Server{
		store:             deps.Store,
		matches:           store.NewCollection(deps.Store, store.MatchesPath, func(m *domain.Match, id string) { m.ID = id }),
		sessions:          deps.Sessions,
		search:            deps.Search,
		sseManager:        deps.SSEManager,
		sseHandler:        deps.SSEHandler,
		router:            chi.NewRouter(),
		logger:            deps.Logger,
		authRateLimiter:   NewRateLimiter(20, time.Minute, 10),
		inviteRateLimiter: NewRateLimiter(30, time.Minute, 10),
	}

	s.setupMiddleware(deps.CORSOrigins)
	s.setupAPI()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, e.g. to dump the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops the background work of the rate limiters.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
	s.inviteRateLimiter.Stop()
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	s.router.Use(RateLimitMiddleware(s.authRateLimiter, s.logger, "/api/v1/auth/sign-in"))
	if s.sessions != nil {
		s.router.Use(sessionMiddleware(s.sessions))
	}
}

func (s *Server) setupAPI() {
	config := huma.DefaultConfig("Darkscore API", "1.0.0")
	config.Info.Description = "Score tracking for board and card game matches between friends."
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}

	s.api = humachi.New(s.router, config)
	RegisterErrorHandler()
}

func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerSocialRoutes()
	s.registerInvitationRoutes()
	s.registerMatchRoutes()
	s.registerPlayerRoutes()

	// The event stream is served outside huma.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/sync/stream", s.sseHandler.ServeHTTP)
	}
}
