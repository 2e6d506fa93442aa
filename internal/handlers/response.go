package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"storysage/internal/errs"
	"storysage/internal/remote"
)

const (
	statusSuccess = remote.StatusSuccess
	statusError   = "error"

	ErrInvalidBody         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Token does not belong to this user"
	ErrInternalServerError = "Internal server error"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, remote.Envelope[any]{Status: statusSuccess, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, remote.Envelope[any]{Status: statusSuccess, Data: data, Message: message})
}

// respondWithError writes the error envelope. userMsg is sent to the client;
// logMsg and err are only logged. The error code is derived from err, or
// from status when err carries no kind.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			logger.Error(logMsg, zap.Int("status", status), zap.Error(err))
		} else {
			logger.Debug(logMsg, zap.Int("status", status), zap.Error(err))
		}
	}

	code := codeForStatus(status)
	var kindErr *errs.Error
	if errors.As(err, &kindErr) {
		code = errs.Code(err)
	}
	writeEnvelope(w, status, remote.Envelope[any]{
		Status: statusError,
		Error:  &remote.APIError{Code: code, Message: userMsg},
	})
}

// respondError maps a classified error onto its status and code. Details of
// client errors are returned to the caller; server errors are not.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, logMsg string) {
	status := errs.HTTPStatus(err)
	userMsg := err.Error()
	if status >= http.StatusInternalServerError {
		userMsg = ErrInternalServerError
	}
	respondWithError(w, logger, status, userMsg, logMsg, err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env remote.Envelope[any]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Invalid("decode", "%s: %v", ErrInvalidBody, err)
	}
	return nil
}
