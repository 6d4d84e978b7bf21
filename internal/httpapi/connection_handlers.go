package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tablemate/tablemate/internal/connection"
	"github.com/tablemate/tablemate/pkg/jsonutil"
)

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	connections, err := s.connections.ForUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": connections})
}

func (s *Server) handleRequestConnection(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var params struct {
		ReceiverID string `json:"receiver_id"`
	}
	if err := jsonutil.Decode(r, &params); err != nil || params.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "receiver_id is required")
		return
	}

	sender, err := s.users.ByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	c, err := s.connections.Request(r.Context(), claims.UserID, params.ReceiverID, sender.DisplayName)
	switch {
	case errors.Is(err, connection.ErrSelfConnect):
		writeError(w, http.StatusBadRequest, "cannot connect with yourself")
	case errors.Is(err, connection.ErrAlreadyLinked):
		writeError(w, http.StatusConflict, "connection already exists")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

func (s *Server) handleAcceptConnection(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	accepter, err := s.users.ByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	c, err := s.connections.Accept(r.Context(), mux.Vars(r)["id"], claims.UserID, accepter.DisplayName)
	switch {
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, "connection not found")
	case errors.Is(err, connection.ErrNotPending):
		writeError(w, http.StatusConflict, "connection is not pending")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleDeclineConnection(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	err := s.connections.Decline(r.Context(), mux.Vars(r)["id"], claims.UserID)
	switch {
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, "connection not found")
	case errors.Is(err, connection.ErrNotPending):
		writeError(w, http.StatusConflict, "connection is not pending")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
