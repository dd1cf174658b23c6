package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(code apperr.Code, message string) map[string]string {
	return map[string]string{"code": string(code), "message": message}
}

// writeError translates service errors into responses. Internal causes are
// logged with context and never shown to the client.
func writeError(w http.ResponseWriter, logger zerolog.Logger, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	message := err.Error()
	if code == apperr.CodeInternal {
		logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "internal error"
	}
	writeJSON(w, status, errorBody(code, message))
}

// claimsFrom pulls the authenticated identity placed by the Authenticator.
func claimsFrom(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	return claims, ok
}
