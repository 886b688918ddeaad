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
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// ErrUnknownReference is returned when a REFERENCE binding or $field operand
// names a path the target does not carry.
var ErrUnknownReference = errors.New("unknown reference")

// AnonymousSentinel is the value GLOBAL ANONYMOUS resolves to for
// unauthenticated subjects.
const AnonymousSentinel = "ANONYMOUS"

// Clock returns the current instant. Globals read it on every resolution.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// Target paths that address the descriptor fields of a TargetDescriptor.
const (
	PathRoute        = "$route"
	PathIdentifiable = "$identifiable"
	PathReferable    = "$referable"
	PathFragment     = "$fragment"
	PathDescriptor   = "$descriptor"
)

// Resolver turns attribute bindings and field paths into runtime values.
type Resolver struct {
	clock Clock
}

// NewResolver returns a resolver reading globals from clock. A nil clock
// selects SystemClock.
func NewResolver(clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock
	}
	return &Resolver{clock: clock}
}

// Resolve returns the value of binding for the given request.
//
// A missing claim and ANONYMOUS for an authenticated subject resolve to no
// value. An unknown reference path is an error wrapping ErrUnknownReference.
func (r *Resolver) Resolve(binding grammar.AttributeBinding, ctx EvaluationContext) (Value, error) {
	switch binding.Source {
	case grammar.SourceClaim:
		raw, ok := ctx.Subject.Claims[binding.Name]
		if !ok {
			return noValue, nil
		}
		return valueFromAny(raw), nil
	case grammar.SourceGlobal:
		return r.resolveGlobal(binding.GlobalKind(), ctx.Subject)
	case grammar.SourceReference:
		return r.ResolveField(binding.Name, ctx.Target)
	}
	return noValue, fmt.Errorf("%w: invalid attribute binding %s", grammar.ErrMalformedExpression, binding)
}

func (r *Resolver) resolveGlobal(kind grammar.GlobalKind, subject Subject) (Value, error) {
	switch kind {
	case grammar.GlobalLocalNow:
		return dateTimeValue(r.clock().In(time.Local)), nil
	case grammar.GlobalUTCNow:
		return dateTimeValue(r.clock().UTC()), nil
	case grammar.GlobalClientNow:
		if subject.ClientNow != nil {
			return dateTimeValue(*subject.ClientNow), nil
		}
		return dateTimeValue(r.clock()), nil
	case grammar.GlobalAnonymous:
		if subject.Anonymous {
			return stringValue(AnonymousSentinel), nil
		}
		return noValue, nil
	}
	return noValue, fmt.Errorf("%w: unknown GLOBAL %q", grammar.ErrMalformedExpression, kind)
}

// ResolveField looks path up on the target. The descriptor fields are
// addressable as $route, $identifiable, $referable, $fragment and $descriptor.
func (r *Resolver) ResolveField(path string, target TargetDescriptor) (Value, error) {
	if v, ok := descriptorField(path, target); ok {
		return stringValue(v), nil
	}
	raw, ok := target.Fields[path]
	if !ok {
		return noValue, fmt.Errorf("%w: %q", ErrUnknownReference, path)
	}
	return valueFromAny(raw), nil
}

func descriptorField(path string, target TargetDescriptor) (string, bool) {
	switch path {
	case PathRoute:
		return target.Route, true
	case PathIdentifiable:
		return target.Identifiable, true
	case PathReferable:
		return target.Referable, true
	case PathFragment:
		return target.Fragment, true
	case PathDescriptor:
		return target.Descriptor, true
	}
	return "", false
}
