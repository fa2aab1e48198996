package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"whiteboard-sync/internal/models"
	"whiteboard-sync/internal/services/boardsync"
	"whiteboard-sync/internal/services/collaboration"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
type Handler struct {
	registry  BoardRegistry
	presence  Presence
	wsHandler *collaboration.WebSocketHandler
}

func NewHandler(registry BoardRegistry, presence Presence, wsHandler *collaboration.WebSocketHandler) *Handler {
	return &Handler{
		registry:  registry,
		presence:  presence,
		wsHandler: wsHandler,
	}
}

// Board handlers

func (h *Handler) ListBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"boards":   h.registry.Count(),
		"rooms":    h.presence.RoomCount(),
		"sessions": h.presence.SessionCount(),
	})
}

func (h *Handler) GetBoardStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stats, err := h.registry.Stats(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetBoardState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Read-only: polling an unknown id must not start a board worker
	var snapshot models.BoardSnapshot
	err := h.registry.View(r.Context(), id, func(state *models.BoardState) {
		snapshot = state.Snapshot()
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        snapshot,
		"participants": h.presence.Participants(id),
	})
}

func (h *Handler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.registry.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reconciliation handlers

func (h *Handler) MergeBoards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A models.BoardSnapshot `json:"a"`
		B models.BoardSnapshot `json:"b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, boardsync.MergeByRecency(req.A, req.B))
}

func (h *Handler) ResolveOperations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Op1 models.Operation `json:"op1"`
		Op2 models.Operation `json:"op2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	kept := boardsync.ResolvePairwise(req.Op1, req.Op2)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflict": req.Op1.ObjectID == req.Op2.ObjectID,
		"kept":     kept,
	})
}

// WebSocket endpoint

func (h *Handler) HandleBoardWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, boardsync.ErrInvalidBoardID):
		return http.StatusBadRequest
	case errors.Is(err, boardsync.ErrBoardClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
