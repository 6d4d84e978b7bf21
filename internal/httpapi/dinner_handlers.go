package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tablemate/tablemate/internal/dinner"
	"github.com/tablemate/tablemate/pkg/jsonutil"
)

func (s *Server) handleListDinners(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	dinners, err := s.dinners.ListUpcoming(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dinners": dinners})
}

func (s *Server) handleGetDinner(w http.ResponseWriter, r *http.Request) {
	d, err := s.dinners.DinnerByID(r.Context(), mux.Vars(r)["id"])
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

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var params struct {
		Notes *string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := jsonutil.Decode(r, &params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	b, err := s.dinners.Book(r.Context(), mux.Vars(r)["id"], claims.UserID, params.Notes)
	switch {
	case errors.Is(err, dinner.ErrNotFound):
		writeError(w, http.StatusNotFound, "dinner not found")
	case errors.Is(err, dinner.ErrDinnerFull):
		writeError(w, http.StatusConflict, "dinner is fully booked")
	case errors.Is(err, dinner.ErrDinnerInactive):
		writeError(w, http.StatusConflict, "dinner is no longer active")
	case errors.Is(err, dinner.ErrAlreadyBooked):
		writeError(w, http.StatusConflict, "already booked")
	case err != nil:
		s.logger.Error("booking failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusCreated, b)
	}
}

func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	bookings, err := s.dinners.BookingsForUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	err := s.dinners.CancelBooking(r.Context(), mux.Vars(r)["id"], claims.UserID)
	switch {
	case errors.Is(err, dinner.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, dinner.ErrBookingFinished):
		writeError(w, http.StatusConflict, "booking already cancelled")
	case err != nil:
		s.logger.Error("cancellation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRateBooking(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var params struct {
		Rating int `json:"rating"`
	}
	if err := jsonutil.Decode(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := s.dinners.RateBooking(r.Context(), mux.Vars(r)["id"], claims.UserID, params.Rating)
	switch {
	case errors.Is(err, dinner.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
	case errors.Is(err, dinner.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, dinner.ErrAlreadyRated):
		writeError(w, http.StatusConflict, "booking already rated")
	case errors.Is(err, dinner.ErrNotRatable):
		writeError(w, http.StatusConflict, "booking cannot be rated yet")
	case err != nil:
		s.logger.Error("rating failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleRatableBookings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	bookings, err := s.dinners.RatableBookings(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ratable_bookings": bookings})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	s.chat.ServeWS(w, r, mux.Vars(r)["id"], claims.UserID)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	messages, err := s.chat.History(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
