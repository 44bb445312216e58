package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/paystation-relay/platform/health/http"
	platformobservability "github.com/shestoi/paystation-relay/platform/observability"
)

// NewRouter собирает HTTP роутер relay.
// ws - websocket endpoint клиентов; checks - проверки зависимостей для /health.
func NewRouter(handler *Handler, ws http.Handler, checks map[string]platformhealth.Check, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("paystation-relay", logger))
	}

	router.Handle("/ws", ws)
	router.Post("/paystation_callback", handler.PostCallback)
	router.Get("/cards", handler.GetCards)
	router.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handler.GetTransaction(w, r, chi.URLParam(r, "id"))
	})
	router.Get("/health", platformhealth.Handler(checks))

	return router
}
