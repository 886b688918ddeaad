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

package auth

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// clientTimeClaim optionally carries the client's clock for CLIENTNOW.
const clientTimeClaim = "clientTime"

// SubjectFromHeader returns a middleware that stores the subject described by
// header in the request context. The header holds the caller's claims as a
// JSON object; requests without it are anonymous. A malformed header is
// rejected with 400.
func SubjectFromHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" || header == "" {
				next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), AnonymousSubject())))
				return
			}
			subject, err := parseSubjectHeader(raw)
			if err != nil {
				log.Printf("❌ ABAC: invalid %s header: %v", header, err)
				writeBadSubject(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func parseSubjectHeader(raw string) (Subject, error) {
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return Subject{}, fmt.Errorf("claims must be a JSON object: %w", err)
	}
	if claims == nil {
		return Subject{}, errors.New("claims must be a JSON object")
	}
	subject := Subject{Claims: claims}
	if v, ok := claims[clientTimeClaim].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Subject{}, fmt.Errorf("%s: %w", clientTimeClaim, err)
		}
		subject.ClientNow = &t
	}
	return subject, nil
}
