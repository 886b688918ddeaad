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
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
)

// stripBasePath removes the configured base path from a request path so
// route patterns of rules can be written without it.
func stripBasePath(basePath, reqPath string) string {
	base := common.NormalizeBasePath(basePath)
	if base == "/" {
		return ensureLeadingSlash(reqPath)
	}
	if reqPath == base || strings.HasPrefix(reqPath, base+"/") {
		trimmed := strings.TrimPrefix(reqPath, base)
		if trimmed == "" {
			return "/"
		}
		return ensureLeadingSlash(trimmed)
	}
	return ensureLeadingSlash(reqPath)
}

func ensureLeadingSlash(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/") || p == "*" {
		return p
	}
	return "/" + p
}
