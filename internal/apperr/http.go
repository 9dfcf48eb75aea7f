package apperr

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Body is the JSON error payload returned by the API.
type Body struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP renders err as a JSON error response. Store and unclassified
// failures are logged and rendered with their kind and a generic message.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	body := Body{Kind: kind, Message: PublicMessage(err)}
	if kind == KindStore || kind == KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(kind))
	_ = json.NewEncoder(w).Encode(body)
}
