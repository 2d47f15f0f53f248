package server

import (
	"net/http"
	"strconv"
)

const corsMaxAge = 86400

// fixedCORSHeaders runs inside cors.Handler. Preflights and actual
// requests, with or without an Origin, leave with the same header set;
// cors.Handler alone narrows Allow-Methods to the requested method on a
// preflight and stamps nothing when Origin is absent.
func fixedCORSHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		next.ServeHTTP(w, r)
	})
}

func handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
