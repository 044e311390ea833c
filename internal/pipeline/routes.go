package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nbakr/marko/internal/feedback"
)

// RegisterRoutes mounts the conversation API on the given router.
func RegisterRoutes(r chi.Router, co *Coordinator, store *Store) {
	r.Post("/api/conversations", startHandler(co))
	r.Get("/api/conversations", listHandler(store))
	r.Get("/api/conversations/{id}", getHandler(co))
	r.Post("/api/conversations/{id}/messages", messageHandler(co))
	r.Post("/api/conversations/{id}/preview/approve", approveHandler(co))
	r.Post("/api/conversations/{id}/preview/revise", reviseHandler(co))
	r.Post("/api/conversations/{id}/feedback", feedbackHandler(co))
}

func startHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
		if req.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}

		_, reply, err := co.Start(r.Context(), req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	}
}

func listHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		status := ConversationStatus(r.URL.Query().Get("status"))

		results, err := store.List(r.Context(), userID, status)
		if err != nil {
			writeError(w, err)
			return
		}
		if results == nil {
			results = []Conversation{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func getHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, turns, err := co.Conversation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if conv == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		if turns == nil {
			turns = []Turn{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversation": conv,
			"turns":        turns,
		})
	}
}

func messageHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
		if req.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}

		reply, err := co.Message(r.Context(), chi.URLParam(r, "id"), req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func approveHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply, err := co.ApprovePreview(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func reviseHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Note string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}

		reply, err := co.RevisePreview(r.Context(), chi.URLParam(r, "id"), req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func feedbackHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fb feedback.Feedback
		if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}

		reply, err := co.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), &fb)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// writeError maps pipeline errors to HTTP statuses: stage conflicts and
// races are 409, hard pipeline failures are 422.
func writeError(w http.ResponseWriter, err error) {
	var wrongStage *WrongStageError
	var briefErr *BriefIncompleteError
	var verifyErr *VerificationFailedError
	var timeoutErr *GenerationTimeoutError

	switch {
	case errors.As(err, &wrongStage), errors.Is(err, ErrConversationDone), errors.Is(err, ErrPersistenceConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &briefErr), errors.As(err, &verifyErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
