// Package handlers implements the HTTP handlers of the fingerprint index API.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// DefaultMaxBodySize bounds request bodies when no limit is configured.
const DefaultMaxBodySize = 32 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// errorResponse renders err for a client. Unclassified and internal errors
// are masked.
func errorResponse(err error) (int, ErrorResponse) {
	code := errors.GetCode(err)
	var ae *errors.AppError
	if code == errors.CodeUnknown || code == errors.CodeInternal || !errors.As(err, &ae) {
		return http.StatusInternalServerError, ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: "internal server error",
		}
	}
	return errors.HTTPStatusForCode(code), ErrorResponse{
		Code:    string(code),
		Message: ae.Message,
		Detail:  ae.Detail,
	}
}

// writeAppError maps application errors to HTTP responses and logs server
// side failures.
func writeAppError(w http.ResponseWriter, logger logging.Logger, msg string, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, logging.Err(err))
	} else {
		logger.Debug(msg, logging.Err(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body of at most maxBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.InvalidParam("request body too large").WithDetailf("limit=%d", maxBytes)
		case stderrors.Is(err, io.EOF):
			return errors.InvalidParam("request body is empty")
		default:
			return errors.Wrap(err, errors.CodeInvalidParam, "invalid request body").WithDetail(err.Error())
		}
	}
	return nil
}

//Personal.AI order the ending
