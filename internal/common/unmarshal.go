/*******************************************************************************
* Copyright (C) 2025 the Eclipse BaSyx Authors and Fraunhofer IESE
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
	"bytes"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// MaxRequestBodyBytes bounds every JSON request body read by DecodeJSONBody.
const MaxRequestBodyBytes = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UnmarshalAndDisallowUnknownFields decodes value into v and rejects fields
// that v does not declare.
func UnmarshalAndDisallowUnknownFields(value []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// ReadRequestBody reads at most MaxRequestBodyBytes from r. Empty and
// oversized bodies are reported as bad requests.
func ReadRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, NewErrBadRequest("request body is required")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodyBytes+1))
	if err != nil {
		return nil, NewErrBadRequest(fmt.Sprintf("read request body: %v", err))
	}
	if len(body) > MaxRequestBodyBytes {
		return nil, NewErrBadRequest("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, NewErrBadRequest("request body is required")
	}
	return body, nil
}

// DecodeJSONBody reads the request body and decodes it strictly into v.
func DecodeJSONBody(r *http.Request, v any) error {
	body, err := ReadRequestBody(r)
	if err != nil {
		return err
	}
	if err := UnmarshalAndDisallowUnknownFields(body, v); err != nil {
		return NewErrBadRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
