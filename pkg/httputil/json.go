package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of an error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code and a user-facing message.
type ErrorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err with the status of its code. Errors without a code
// are treated as internal and logged.
func WriteError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = log.Default()
		}
		logger.Error("request failed", "code", code, "err", err)
		code, msg = errors.ErrCodeInternal, "internal error"
	}
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

// DecodeJSON decodes the request body into v. An empty body leaves v
// unchanged.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
