package httpapi

import (
	"net/http"
	"strconv"

	"github.com/tablemate/tablemate/internal/user"
	"github.com/tablemate/tablemate/pkg/jsonutil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	jsonutil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	jsonutil.WriteErrorJSON(w, status, msg)
}

// claimsFrom returns the verified claims the auth middleware stored.
func claimsFrom(r *http.Request) *user.Claims {
	claims, _ := r.Context().Value(claimsKey).(*user.Claims)
	return claims
}

// pagination reads limit/offset query params, leaving zero for absent or
// junk values; the services apply their own defaults and caps.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
