package http

import (
	"errors"
	"net/http"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/runner"
)

// APIError is the body of every failed request.
type APIError struct {
	Err        error             `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func badRequest(message string, err error) *APIError {
	return &APIError{Err: err, Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest}
}

// errorMapping pairs a sentinel with its status and code. The first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrResponseNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrNodeNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrSessionExists, http.StatusConflict, "CONFLICT"},
	{domain.ErrNodeReferenced, http.StatusConflict, "CONFLICT"},
	{domain.ErrStaleLoad, http.StatusConflict, "STALE_LOAD"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrInvalidChoice, http.StatusBadRequest, "INVALID_CHOICE"},
	{domain.ErrUnknownStage, http.StatusBadRequest, "UNKNOWN_STAGE"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, "INVALID_STATUS"},
	{runner.ErrInputTooLarge, http.StatusRequestEntityTooLarge, "INPUT_TOO_LARGE"},
	{runner.ErrInvalidUTF8, http.StatusBadRequest, "BAD_REQUEST"},
	{domain.ErrLoadFailure, http.StatusBadGateway, "LOAD_FAILED"},
	{domain.ErrMalformedGraph, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	{domain.ErrCyclicGraph, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	{domain.ErrDanglingReference, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	{domain.ErrSubmissionInvalid, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	{authoring.ErrOperatorRequired, http.StatusUnauthorized, "UNAUTHORIZED"},
	{auth.ErrNoOperator, http.StatusUnauthorized, "UNAUTHORIZED"},
	{triage.ErrReadOnlyBank, http.StatusForbidden, "READ_ONLY"},
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	out := &APIError{Err: err, Code: "INTERNAL", Message: "internal error", HTTPStatus: http.StatusInternalServerError}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			out.Code, out.HTTPStatus, out.Message = m.code, m.status, err.Error()
			break
		}
	}
	var gerr *graph.Error
	if errors.As(err, &gerr) {
		out.Details = issueDetails(gerr.Result)
	}
	return out
}

// issueDetails flattens a validation result to address → messages.
func issueDetails(res graph.Result) map[string]string {
	details := make(map[string]string, len(res))
	for _, addr := range res.Addresses() {
		msg := ""
		for i, is := range res[addr] {
			if i > 0 {
				msg += "; "
			}
			msg += is.Message
		}
		details[string(addr)] = msg
	}
	return details
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "code", apiErr.Code, "err", err)
	}
	s.writeJSON(w, apiErr.HTTPStatus, apiErr)
}
