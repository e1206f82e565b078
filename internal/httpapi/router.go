// Package httpapi wires the session engine and auth handler onto HTTP
// routes, following the same gorilla/mux + rs/cors shape the rest of
// this codebase's server entrypoint uses.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/dlalloyd/adaptive-kernel/internal/auth"
	"github.com/dlalloyd/adaptive-kernel/internal/middleware"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
	"github.com/dlalloyd/adaptive-kernel/internal/session"
)

// NewRouter assembles the full HTTP surface: public health and auth
// routes, and JWT-protected session routes.
func NewRouter(engine *session.Engine, authHandler *auth.Handler, jwtSecret []byte) http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(jwtSecret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods(http.MethodGet)

	sessionsHandler := &Handler{engine: engine}
	protected.HandleFunc("/sessions", sessionsHandler.CreateSession).Methods(http.MethodPost)
	protected.HandleFunc("/sessions/{id}/next-question", sessionsHandler.NextQuestion).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/{id}/answer", sessionsHandler.SubmitAnswer).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), models.ErrorResponse{Error: err.Error()})
}
