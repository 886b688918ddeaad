/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

package common

import (
	"errors"
	"net/http"
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model"
)

// ErrorHandler is the JSON body of every error response.
type ErrorHandler struct {
	MessageType   string `json:"messageType"`
	Text          string `json:"text"`
	Code          string `json:"code,omitempty"`
	CorrelationId string `json:"correlationId,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

func NewErrorHandler(messageType string, text error, code string, correlationId string, timestamp string) *ErrorHandler {
	return &ErrorHandler{
		MessageType:   messageType,
		Text:          text.Error(),
		Code:          code,
		CorrelationId: correlationId,
		Timestamp:     timestamp,
	}
}

const (
	prefixNotFound   = "404 Not Found: "
	prefixBadRequest = "400 Bad Request: "
	prefixConflict   = "409 Conflict: "
)

func NewErrNotFound(elementId string) error {
	return errors.New(prefixNotFound + elementId)
}

func NewErrBadRequest(message string) error {
	return errors.New(prefixBadRequest + message)
}

func NewErrConflict(message string) error {
	return errors.New(prefixConflict + message)
}

func IsErrNotFound(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), prefixNotFound)
}

func IsErrBadRequest(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), prefixBadRequest)
}

func IsErrConflict(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), prefixConflict)
}

// StatusCodeFor maps an error built by the constructors above to its HTTP
// status. Anything else is an internal error.
func StatusCodeFor(err error) int {
	switch {
	case IsErrNotFound(err):
		return http.StatusNotFound
	case IsErrBadRequest(err):
		return http.StatusBadRequest
	case IsErrConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse wraps err in the error body format and pairs it with status.
// code identifies the failing operation, e.g. "RULES-GETBYID-NOTFOUND".
func NewErrorResponse(err error, status int, component string, operation string, code string) model.ImplResponse {
	return model.Response(status, []ErrorHandler{
		*NewErrorHandler("Error", err, strings.ToUpper(component+"-"+operation+"-"+code), "", GetCurrentTimestamp()),
	})
}
