package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/apperr"
)

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError renders err as {"detail": ...} with a status derived from its
// classification.
func writeError(w http.ResponseWriter, err error) {
	detail := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) && e.Err != nil {
		detail = e.Err.Error()
	}
	writeJSON(w, statusFor(apperr.KindOf(err)), errorBody{Detail: detail})
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorBody{Detail: detail})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindConfiguration:
		return http.StatusBadRequest
	case apperr.KindUnresolvedReference:
		return http.StatusNotFound
	case apperr.KindStorage, apperr.KindCapability:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
