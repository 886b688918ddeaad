package model

import (
	"net/http"
)

// ErrorHandler writes the response for a failed servicer call. Controllers
// accept a custom one through their options.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error, result *ImplResponse)

// DefaultErrorHandler writes the result built by the servicer as is. Without
// a result it answers 500 with the error text.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error, result *ImplResponse) {
	if result == nil || result.Code == 0 {
		status := http.StatusInternalServerError
		_ = EncodeJSONResponse(err.Error(), &status, w)
		return
	}
	_ = EncodeJSONResponse(result.Body, &result.Code, w)
}
