package api

import (
	"net/http"

	"whiteboard-sync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Board endpoints
	api.HandleFunc("/boards", h.ListBoards).Methods("GET")
	api.HandleFunc("/boards/merge", h.MergeBoards).Methods("POST")
	api.HandleFunc("/boards/{id}", h.GetBoardStats).Methods("GET")
	api.HandleFunc("/boards/{id}/state", h.GetBoardState).Methods("GET")
	api.HandleFunc("/boards/{id}", h.DeleteBoard).Methods("DELETE")

	// Conflict arbitration
	api.HandleFunc("/operations/resolve", h.ResolveOperations).Methods("POST")

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket routes
	r.HandleFunc("/ws", h.HandleBoardWebSocket)
	r.HandleFunc("/ws/board/{id}", h.HandleBoardWebSocket)

	return r
}
