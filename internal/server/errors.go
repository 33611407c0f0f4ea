// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorCode string

const (
	codeBadRequest    errorCode = "BAD_REQUEST"
	codeConflict      errorCode = "CONFLICT"
	codeInternalError errorCode = "INTERNAL_ERROR"
)

type (
	apiError struct {
		statusCode int
		code       errorCode
		message    string
	}

	// errorResponse is the JSON envelope for error responses.
	errorResponse struct {
		Error errorBody `json:"error"`
	}

	errorBody struct {
		Code    errorCode `json:"code"`
		Message string    `json:"message"`
	}
)

func (e *apiError) Error() string {
	return e.message
}

func badRequest(msg string) *apiError {
	return &apiError{statusCode: http.StatusBadRequest, code: codeBadRequest, message: msg}
}

func conflict(msg string) *apiError {
	return &apiError{statusCode: http.StatusConflict, code: codeConflict, message: msg}
}

func internalError(msg string) *apiError {
	return &apiError{statusCode: http.StatusInternalServerError, code: codeInternalError, message: msg}
}

// writeError writes a structured JSON error response. If err is an *apiError,
// the status code and code are taken from it; otherwise 500 is used.
func writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = internalError(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: ae.code, Message: ae.message}})
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
