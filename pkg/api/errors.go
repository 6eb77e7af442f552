package api

import (
	"encoding/json"
	"net/http"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
)

// errorBody is the `{message, code, type, link}` envelope spec.md §6/§7
// requires on every error response, matching the shape already attached to
// a failed task's Error field.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates err into the taxonomy-tagged envelope and an HTTP
// status derived from its Type, defaulting unrecognized errors to an
// internal 500 rather than leaking a bare Go error string's shape.
func writeError(w http.ResponseWriter, err error) {
	var serr *stratumerrors.Error
	if stratumerrors.As(err, &serr) {
		writeJSON(w, statusForType(serr.ErrType), errorBody{
			Message: serr.Error(),
			Code:    serr.Code,
			Type:    string(serr.ErrType),
			Link:    serr.Link,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Message: err.Error(),
		Code:    "internal_error",
		Type:    string(stratumerrors.TypeInternal),
	})
}

func badRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Message: message,
		Code:    code,
		Type:    string(stratumerrors.TypeInvalidRequest),
	})
}

func statusForType(t stratumerrors.Type) int {
	switch t {
	case stratumerrors.TypeInvalidRequest:
		return http.StatusBadRequest
	case stratumerrors.TypeAuth:
		return http.StatusForbidden
	case stratumerrors.TypeSystem:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
