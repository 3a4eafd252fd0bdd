// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/okian/starchallenge/internal/adapters/http/swagger"
	"github.com/okian/starchallenge/pkg/logger"
)

const corsMaxAge = 300

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PerformanceDependencies
	ChallengeDependencies
	LeaderboardDependencies
	UserDependencies
	StatsProvider
	Pinger
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	performanceHandler *PerformanceHandler
	challengeHandler   *ChallengeHandler
	leaderboardHandler *LeaderboardHandler
	userHandler        *UserHandler

	live           http.Handler
	allowedOrigins []string
	log            logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{log: logger.Named("api")}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.performanceHandler = NewPerformanceHandler(deps, s.log)
	s.challengeHandler = NewChallengeHandler(deps, s.log)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.log)
	s.userHandler = NewUserHandler(deps, s.log)
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	swagger.Register(r)

	if s.live != nil {
		r.Handle("/ws", s.live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/live/stats", MetricsMiddleware(s.statsHandler.HandleLiveStats, "live_stats"))

		r.Route("/performances", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(s.performanceHandler.HandleCreate, "performance_create"))
			r.Get("/{id}", MetricsMiddleware(s.performanceHandler.HandleGet, "performance_get"))
			r.Put("/{id}", MetricsMiddleware(s.performanceHandler.HandleUpdate, "performance_update"))
			r.Delete("/{id}", MetricsMiddleware(s.performanceHandler.HandleDelete, "performance_delete"))
			r.Post("/{id}/stars", MetricsMiddleware(s.performanceHandler.HandleGrantStars, "performance_stars"))
		})

		r.Route("/challenges", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(s.challengeHandler.HandleCreate, "challenge_create"))
			r.Get("/{id}", MetricsMiddleware(s.challengeHandler.HandleGet, "challenge_get"))
			r.Post("/{id}/criteria", MetricsMiddleware(s.challengeHandler.HandleCreateCriterion, "criterion_create"))
			r.Post("/{id}/participants", MetricsMiddleware(s.challengeHandler.HandleJoin, "participant_create"))
			r.Get("/{id}/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
			r.Get("/{id}/statistics", MetricsMiddleware(s.leaderboardHandler.HandleGetStatistics, "statistics"))
			r.Post("/{id}/recompute", MetricsMiddleware(s.leaderboardHandler.HandleRecompute, "recompute"))
			r.Post("/{id}/winners", MetricsMiddleware(s.leaderboardHandler.HandleSelectWinners, "winners_select"))
			r.Get("/{id}/winners", MetricsMiddleware(s.leaderboardHandler.HandleListWinners, "winners_list"))
		})

		r.Post("/users", MetricsMiddleware(s.userHandler.HandleCreate, "user_create"))
		r.Get("/users/{id}/progress", MetricsMiddleware(s.userHandler.HandleProgress, "user_progress"))
		r.Get("/users/{id}/rewards", MetricsMiddleware(s.userHandler.HandleListRewards, "rewards_list"))
		r.Post("/users/{id}/rewards/evaluate", MetricsMiddleware(s.userHandler.HandleEvaluateRewards, "rewards_evaluate"))

		r.Post("/tiers", MetricsMiddleware(s.userHandler.HandleCreateTier, "tier_create"))
		r.Get("/tiers", MetricsMiddleware(s.userHandler.HandleListTiers, "tier_list"))
	})
	return r
}

func (s *Server) corsOptions() cors.Options {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	}
}
