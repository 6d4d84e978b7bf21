package httpapi

import (
	"errors"
	"net/http"

	"github.com/tablemate/tablemate/internal/user"
	"github.com/tablemate/tablemate/pkg/jsonutil"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var params user.RegisterParams
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.users.Register(r.Context(), params)
	if errors.Is(err, user.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var params struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, token, err := s.users.Login(r.Context(), params.Email, params.Password)
	if errors.Is(err, user.ErrBadCredential) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  u,
		"token": token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	u, err := s.users.ByID(r.Context(), claims.UserID)
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := s.users.DeleteAccount(r.Context(), claims.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceToken registers the caller's push endpoint; a null token
// unregisters the device.
func (s *Server) handleDeviceToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var params struct {
		DeviceToken *string `json:"device_token"`
	}
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.SetDeviceToken(r.Context(), claims.UserID, params.DeviceToken); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var params struct {
		PushEnabled  bool `json:"push_enabled"`
		EmailEnabled bool `json:"email_enabled"`
	}
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.SetPreferences(r.Context(), claims.UserID, params.PushEnabled, params.EmailEnabled); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
