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
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// attributesAvailable returns true only if ALL declared attributes can be
// supplied for the request.
// Rules supported:
//   - GLOBAL=<kind>       → satisfied unconditionally
//   - CLAIM=<claimKey>    → subject must carry that claim key (presence check)
//   - REFERENCE=<path>    → target must carry that field
//
// An empty list is satisfied. Unknown sources fail closed.
func (e *Engine) attributesAvailable(items []grammar.AttributeBinding, ctx EvaluationContext) bool {
	for _, it := range items {
		switch it.Source {
		case grammar.SourceGlobal:
			continue
		case grammar.SourceClaim:
			if _, ok := ctx.Subject.Claims[it.Name]; !ok {
				return false
			}
		case grammar.SourceReference:
			if _, err := e.resolver.ResolveField(it.Name, ctx.Target); err != nil {
				return false
			}
		default:
			return false
		}
	}
	return true
}
