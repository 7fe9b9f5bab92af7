package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"EduQuest/server/internal/engine"
	"EduQuest/server/internal/storage"
)

// SessionHandlers handles session and story requests
type SessionHandlers struct {
	workflow *engine.Workflow
	store    *storage.Store
}

// NewSessionHandlers creates a new session handlers instance
func NewSessionHandlers(workflow *engine.Workflow, store *storage.Store) *SessionHandlers {
	return &SessionHandlers{
		workflow: workflow,
		store:    store,
	}
}

// StartSessionResponse represents a session creation response
type StartSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TurnRequest represents a turn processing request
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// TurnResponse represents a turn processing response
type TurnResponse struct {
	Success bool               `json:"success"`
	Result  *engine.TurnResult `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// StartSession creates a new workflow session
func (h *SessionHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.workflow == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(StartSessionResponse{
			Success: false,
			Error:   "Workflow not initialized",
		})
		return
	}

	sessionID, greeting := h.workflow.StartSession()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(StartSessionResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   greeting,
	})
}

// ProcessTurn runs one workflow turn
func (h *SessionHandlers) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(TurnResponse{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	if req.SessionID == "" || req.Text == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(TurnResponse{
			Success: false,
			Error:   "session_id and text are required",
		})
		return
	}

	if h.workflow == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(TurnResponse{
			Success: false,
			Error:   "Workflow not initialized",
		})
		return
	}

	result, err := h.workflow.ProcessTurn(r.Context(), req.SessionID, req.Text)
	if err != nil {
		log.Printf("ProcessTurn: failed for %s: %v", req.SessionID, err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(TurnResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TurnResponse{
		Success: true,
		Result:  result,
	})
}

// GetStatus returns the current session status
func (h *SessionHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sessionID := chi.URLParam(r, "session_id")

	if h.workflow == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "Workflow not initialized"})
		return
	}

	status, err := h.workflow.Status(sessionID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Session not found"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ResetSession clears a session back to its initial state
func (h *SessionHandlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sessionID := chi.URLParam(r, "session_id")

	if h.workflow == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "Workflow not initialized"})
		return
	}

	if err := h.workflow.Reset(sessionID); err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Session not found"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// GetStory returns a persisted story payload
func (h *SessionHandlers) GetStory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	storyID := chi.URLParam(r, "story_id")

	if h.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "Storage not initialized"})
		return
	}

	story, err := h.store.GetStory(r.Context(), storyID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Story not found"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(story)
}
