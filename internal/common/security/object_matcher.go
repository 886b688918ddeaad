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
	"path"
	"strings"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// Matches reports whether every set field of pattern matches the
// corresponding field of target. Unset fields match anything.
func Matches(pattern grammar.ObjectPattern, target TargetDescriptor) bool {
	if pattern.Route != "" && !matchRoute(pattern.Route, target.Route) {
		return false
	}
	if pattern.Identifiable != "" && !matchIdentifier(pattern.Identifiable, target.Identifiable) {
		return false
	}
	if pattern.Referable != "" && !matchIdentifier(pattern.Referable, target.Referable) {
		return false
	}
	if pattern.Fragment != "" && !matchIdentifier(pattern.Fragment, target.Fragment) {
		return false
	}
	if pattern.Descriptor != "" && !matchIdentifier(pattern.Descriptor, target.Descriptor) {
		return false
	}
	return true
}

// MatchesAny reports whether one of patterns matches target. An empty list
// marks a global rule and matches every target.
func MatchesAny(patterns []grammar.ObjectPattern, target TargetDescriptor) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Matches(p, target) {
			return true
		}
	}
	return false
}

// normalizeRoute cleans p and ensures a leading slash.
func normalizeRoute(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean(ensureLeadingSlash(p))
}

// matchRoute supports exact routes, a trailing "/*" for everything below a
// route, "*" for all routes and "**" for any remainder.
func matchRoute(pattern, route string) bool {
	if pattern == "*" || pattern == "**" {
		return true
	}
	pat := normalizeRoute(pattern)
	r := normalizeRoute(route)

	if i := strings.Index(pat, "**"); i >= 0 {
		prefix, suffix := pat[:i], pat[i+2:]
		if suffix == "" && strings.HasSuffix(prefix, "/") && r == strings.TrimSuffix(prefix, "/") {
			return true
		}
		return len(r) >= len(prefix)+len(suffix) && strings.HasPrefix(r, prefix) && strings.HasSuffix(r, suffix)
	}
	if strings.HasSuffix(pat, "/*") {
		base := strings.TrimSuffix(pat, "*")
		if base == "/" {
			return r != "/"
		}
		return len(r) > len(base) && strings.HasPrefix(r, base)
	}
	return pat == r
}

// matchIdentifier supports exact values, "*" and a trailing "*" prefix.
func matchIdentifier(pattern, value string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}
