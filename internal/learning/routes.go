package learning

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nbakr/marko/internal/audit"
)

// RegisterRoutes mounts the learning admin API on the given router.
func RegisterRoutes(r chi.Router, store *Store, auditStore *audit.Store) {
	r.Get("/api/learnings", listHandler(store))
	r.Get("/api/learnings/{id}", getHandler(store))
	r.Post("/api/learnings/{id}/approve", reviewHandler(store, auditStore, StatusApproved))
	r.Post("/api/learnings/{id}/reject", reviewHandler(store, auditStore, StatusRejected))
}

func listHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{}
		if v := r.URL.Query().Get("type"); v != "" {
			filter.Type = Type(v)
		}
		if v := r.URL.Query().Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				filter.Offset = n
			}
		}

		results, err := store.List(r.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if results == nil {
			results = []Learning{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func getHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if l == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
}

// reviewHandler resolves a pending learning. Approval and rejection race
// with the gate's reinforcement path only while the record is pending; the
// compare-and-set in TransitionStatus makes the outcome unambiguous.
func reviewHandler(store *Store, auditStore *audit.Store, to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
		if req.Reviewer == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reviewer is required"})
			return
		}

		id := chi.URLParam(r, "id")
		if err := store.TransitionStatus(r.Context(), id, StatusPending, to); err != nil {
			if err == ErrStaleStatus {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "learning is no longer pending"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		action := audit.ActionLearningApproved
		if to == StatusRejected {
			action = audit.ActionLearningRejected
		}
		if auditStore != nil {
			if err := auditStore.Record(r.Context(), audit.Entry{
				ActorType:     audit.ActorAdmin,
				ActorID:       req.Reviewer,
				Action:        action,
				LearningID:    id,
				Summary:       req.Note,
				PreviousValue: string(StatusPending),
				NewValue:      string(to),
			}); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
		}

		l, err := store.Get(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
