package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sous-voice-service/internal/app"
	"sous-voice-service/internal/observability/logging"
	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/service/relay"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &Handlers{
		indexer:   application.Indexer,
		scraper:   application.Scraper,
		validator: application.Validator,
		sessions: func(userID, recipeID string, client relay.ClientConn) *relay.Session {
			return application.NewSession(userID, recipeID, client)
		},
		logger:  logging.WithComponent("http"),
		metrics: metrics.DefaultMetrics,
	}
	if application.Condenser != nil {
		h.condenser = application.Condenser
	}
	return newRouter(h, application.Cfg.Service.CORSOrigins)
}

func newRouter(h *Handlers, origins []string) http.Handler {
	// Origins are policed by CORS, not by the upgrader.
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Voice sessions hijack the connection and live for minutes, so they
	// stay out of the access log and latency histogram.
	r.Get("/listen/{user_id}/{recipe_id}", h.Listen)

	r.Group(func(r chi.Router) {
		r.Use(instrument(h.logger, h.metrics))

		r.Get("/", h.Root)
		r.Get("/health", h.Health)

		r.Post("/chroma-upload-recipe/", h.UploadRecipe)
		r.Post("/chroma-delete-recipe/", h.DeleteRecipe)
		r.Get("/parse-recipe/", h.ParseRecipe)
	})

	return r
}
