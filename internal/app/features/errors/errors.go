// internal/app/features/errors/errors.go
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/bourses/internal/app/services/records"
	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/lifecycle"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"go.uber.org/zap"
)

var (
	// ErrBadRequest marks a request the handler could not parse.
	ErrBadRequest = stderrors.New("bad request")

	// ErrInvalidInput marks well-formed input a handler rejected itself.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrRateLimited marks a caller that sent too many requests.
	ErrRateLimited = stderrors.New("too many requests")
)

// Invalid reports problems found in caller input. It is answered like the
// validation errors of the records service.
func Invalid(problems ...string) error {
	return &records.ValidationError{Err: ErrInvalidInput, Problems: problems}
}

// Error codes carried in the "code" field of error responses.
const (
	CodeBadRequest        = "bad_request"
	CodeInvalid           = "invalid"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeTooLarge          = "payload_too_large"
	CodeLookupFailed      = "fiscal_lookup_failed"
	CodeInternal          = "internal"
	CodeUnsupportedValue  = "unsupported_value"
	CodeInvalidTransition = "invalid_transition"
	CodeRateLimited       = "rate_limited"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Problems []string `json:"problems,omitempty"`
}

// classify maps an error returned by the service layer to a status code,
// an error code and the message shown to the caller. Server-side failures
// get a generic message.
func classify(err error) (int, errorResponse) {
	var verr *records.ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case stderrors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: CodeTooLarge}
	case stderrors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorResponse{Error: verr.Err.Error(), Code: CodeInvalid, Problems: verr.Problems}
	case stderrors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "too many requests, try again later", Code: CodeRateLimited}
	case stderrors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeBadRequest}
	case stderrors.Is(err, cipher.ErrEncoding):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeUnsupportedValue}
	case stderrors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: CodeNotFound}
	case stderrors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: CodeInvalidTransition}
	case stderrors.Is(err, sentinel.ErrPreconditionFailed),
		stderrors.Is(err, institutionstore.ErrDuplicateInstitution):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: CodeConflict}
	case stderrors.Is(err, sentinel.ErrExternalLookup):
		return http.StatusBadGateway, errorResponse{Error: "fiscal lookup unavailable, try again later", Code: CodeLookupFailed}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: CodeInternal}
	}
}

// StatusOf returns the HTTP status an error is reported with.
func StatusOf(err error) int {
	status, _ := classify(err)
	return status
}

// ErrorLogger logs handler failures and writes the matching JSON reply.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{Log: logger}
}

// Write reports err to the client. msg describes the failed step in the
// log entry. 5xx replies are logged at error level, the rest at debug.
func (e *ErrorLogger) Write(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, body := classify(err)
	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if status >= http.StatusInternalServerError {
		e.Log.Error(msg, fields...)
	} else {
		e.Log.Debug(msg, fields...)
	}
	WriteJSON(w, status, body)
}

// LogBadRequest logs err and replies 400 with userMsg.
func (e *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	e.Log.Debug(msg, zap.Error(err), zap.String("path", r.URL.Path))
	WriteJSON(w, http.StatusBadRequest, errorResponse{Error: userMsg, Code: CodeBadRequest})
}

// LogServerError logs err and replies 500 with userMsg.
func (e *ErrorLogger) LogServerError(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	e.Log.Error(msg, zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path))
	WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: userMsg, Code: CodeInternal})
}
