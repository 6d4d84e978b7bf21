package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tablemate/tablemate/internal/dinner"
	"github.com/tablemate/tablemate/internal/notification"
	"github.com/tablemate/tablemate/pkg/jsonutil"
)

func (s *Server) handleCreateDinner(w http.ResponseWriter, r *http.Request) {
	var params dinner.CreateDinnerParams
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := s.dinners.CreateDinner(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDinner(w http.ResponseWriter, r *http.Request) {
	var params dinner.CreateDinnerParams
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := s.dinners.UpdateDinner(r.Context(), mux.Vars(r)["id"], params)
	if errors.Is(err, dinner.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dinner not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCancelDinner(w http.ResponseWriter, r *http.Request) {
	err := s.dinners.CancelDinner(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, dinner.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dinner not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBroadcast pushes one ad-hoc notification to a single user. Bulk
// sends go through the CLI, which loops this same service call.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var params struct {
		UserID  string `json:"user_id"`
		Type    string `json:"type"`
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := s.notifications.Create(r.Context(), notification.CreateParams{
		UserID:  params.UserID,
		Type:    notification.Type(params.Type),
		Title:   params.Title,
		Message: params.Message,
	})
	if errors.Is(err, notification.ErrInvalidType) {
		writeError(w, http.StatusBadRequest, "invalid notification type")
		return
	}
	if err != nil {
		s.logger.Error("broadcast failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}
