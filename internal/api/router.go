package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storymint/mint-pipeline/internal/ledger"
	"github.com/storymint/mint-pipeline/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, ledgerSvc *ledger.Service, apiKey string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	royaltyHandler := NewRoyaltyHandler(ledgerSvc)
	storyHandler := NewStoryHandler(pgStore)
	outboxHandler := NewOutboxHandler(pgStore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(pgStore.Connector()))

		// Everything below requires the internal API key.
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(apiKey))

			r.Route("/royalties", func(r chi.Router) {
				r.Post("/configure", royaltyHandler.Configure)
				r.Get("/configure", royaltyHandler.GetConfig)
				r.Post("/record", royaltyHandler.Record)
				r.Get("/earnings/{wallet}", royaltyHandler.Earnings)
				r.Get("/transactions/{wallet}", royaltyHandler.Transactions)
			})

			r.Route("/stories", func(r chi.Router) {
				r.Get("/{id}", storyHandler.GetStory)
				r.Post("/{id}/mint", storyHandler.RequestMint)
			})

			r.Route("/outbox", func(r chi.Router) {
				r.Get("/", outboxHandler.List)
				r.Get("/{id}", outboxHandler.Get)
			})
		})
	})

	return r
}
