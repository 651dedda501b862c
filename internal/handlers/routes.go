package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(60 * time.Second))

	// WebSocket (Broadcast Channel subscription, one room per connection)
	r.Get("/ws", h.Hub.ServeWs)

	// Rooms
	r.Post("/api/rooms", h.handleCreateRoom)
	r.Get("/api/rooms/{code}", h.handleGetBoard)
	r.Get("/api/rooms/{code}/qr", h.handleJoinQR)
	r.Post("/api/rooms/{code}/join", h.handleJoin)
	r.Post("/api/rooms/{code}/end", h.handleEndRoom)

	// Players
	r.Post("/api/players/{id}/leave", h.handleLeave)
	r.Put("/api/players/{id}/categories", h.handleSelectCategories)

	// Rounds
	r.Post("/api/rooms/{code}/rounds", h.handleStartRound)
	r.Post("/api/rounds/{id}/submissions", h.handleSubmit)
	r.Put("/api/rounds/{id}/guess", h.handleGuess)
	r.Put("/api/rounds/{id}/votes", h.handleSetVotes)

	return r
}
