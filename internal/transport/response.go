// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the negotiation API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/redlinehq/redline/internal/observability"
	"github.com/redlinehq/redline/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes. All token
// denials map to 401: the share link either works or it does not, and the
// response never reveals which way it failed.
var statusForCode = map[string]int{
	model.ErrBadRequest:        http.StatusBadRequest,
	model.ErrUnauthorized:      http.StatusUnauthorized,
	model.ErrForbidden:         http.StatusForbidden,
	model.ErrNotFound:          http.StatusNotFound,
	model.ErrConflict:          http.StatusConflict,
	model.ErrValidationError:   http.StatusUnprocessableEntity,
	model.ErrInvalidTransition: http.StatusConflict,
	model.ErrDeliveryError:     http.StatusBadGateway,
	model.ErrInternalError:     http.StatusInternalServerError,
	model.ErrTokenInvalid:      http.StatusUnauthorized,
	model.ErrTokenExpired:      http.StatusUnauthorized,
	model.ErrTokenConsumed:     http.StatusUnauthorized,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code, attaching the active trace ID when one exists. If err
// is not an *ErrorEnvelope, a generic 500 is returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}
	if ee.TraceID == "" && r != nil {
		ee.TraceID = observability.TraceIDFromContext(r.Context())
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// decodeJSON decodes a request body into dst, rejecting unknown garbage
// with a BAD_REQUEST.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return model.NewBadRequestError("request body is not valid JSON")
	}
	return nil
}
