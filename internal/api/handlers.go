package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	broker  BrokerService
	journal FrameStore // nil when no database is configured
}

func NewHandler(broker BrokerService, journal FrameStore) *Handler {
	return &Handler{
		broker:  broker,
		journal: journal,
	}
}

// HandleWebSocket upgrades the connection and hands it to the broker
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.broker.HandleConnection(w, r)
}

// Session handlers

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.broker.Sessions()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	for _, session := range h.broker.Sessions() {
		if session.ID == id {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(session)
			return
		}
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

// Journal handlers

func (h *Handler) ListFrames(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "frame journal is disabled", http.StatusServiceUnavailable)
		return
	}

	destination := r.URL.Query().Get("destination")
	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
		}
	}

	frames, err := h.journal.ListFrames(r.Context(), destination, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"frames":      frames,
		"destination": destination,
		"limit":       limit,
	})
}

func (h *Handler) LatestFrame(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "frame journal is disabled", http.StatusServiceUnavailable)
		return
	}

	destination := r.URL.Query().Get("destination")
	if destination == "" {
		http.Error(w, "destination is required", http.StatusBadRequest)
		return
	}

	frame, err := h.journal.LatestFrame(r.Context(), destination)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if frame == nil {
		http.Error(w, "no frames for "+destination, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"frame": frame,
		"body":  json.RawMessage(frame.Body),
	})
}
