package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter assembles the API routes and wraps them with CORS.
func NewRouter(handler *Handler, metrics http.Handler) http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs", handler.SubmitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", handler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", handler.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", handler.CancelJob).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/output", handler.GetOutput).Methods(http.MethodGet)
	api.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	router.Handle("/metrics", metrics).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
	})
	return c.Handler(router)
}
