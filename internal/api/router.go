package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Route("/dreams", func(r chi.Router) {
			r.Get("/", apiHandler.ListDreamsHandler)
			r.Post("/", apiHandler.CreateDreamHandler)
			r.Get("/{dreamID}", apiHandler.GetDreamHandler)
			r.Patch("/{dreamID}", apiHandler.UpdateDreamHandler)
			r.Delete("/{dreamID}", apiHandler.DeleteDreamHandler)
		})

		r.Route("/conversation", func(r chi.Router) {
			r.Get("/", apiHandler.GetConversationHandler)
			r.Delete("/", apiHandler.ClearConversationHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
		})

		r.Post("/transcriptions", apiHandler.TranscribeHandler)
	})

	return r
}
