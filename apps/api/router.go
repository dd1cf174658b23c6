package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/auth"
)

// NewRouter wires the HTTP surface. Everything under the authed group
// requires a Bearer session token.
func NewRouter(h *Handler, tokens *auth.Manager, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Metrics)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(tokens))

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Post("/", h.CreateChannel)
			r.Post("/direct", h.CreateDirect)
			r.Route("/{channelID}", func(r chi.Router) {
				r.Post("/members", h.AddMember)
				r.Delete("/members/{userID}", h.RemoveMember)
				r.Patch("/settings", h.UpdateSettings)
				r.Post("/archive", h.ArchiveChannel)
				r.Delete("/", h.DeleteChannel)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.History)
			r.Post("/send", h.SendMessage)
			r.Post("/mark-read", h.MarkRead)
			r.Get("/unread", h.Unread)
			r.Route("/{messageID}", func(r chi.Router) {
				r.Post("/edit", h.EditMessage)
				r.Delete("/", h.DeleteMessage)
				r.Post("/reactions", h.ToggleReaction)
				r.Get("/readers", h.Readers)
				r.Get("/revisions", h.Revisions)
			})
		})

		r.Post("/presence", h.SetPresence)
		r.Get("/presence", h.GetPresence)
		r.Post("/typing", h.SetTyping)
		r.Get("/typing", h.GetTyping)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
