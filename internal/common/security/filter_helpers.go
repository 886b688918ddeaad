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
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
)

// ErrFallbackRequired is returned by the query helpers when the compiled
// filter does not cover every applicable rule. Callers must decide each row
// with Engine.Decide instead.
var ErrFallbackRequired = errors.New("ABAC-FILTER-FALLBACK: compiled filter requires per-object decisions")

// ApplyPredicate appends the compiled predicate of qf as WHERE clause to ds.
// A nil filter leaves ds unchanged. Field paths are mapped to columns with
// columns.
func ApplyPredicate(ds *goqu.SelectDataset, qf *CompileResult, columns grammar.FieldColumnMapping) (*goqu.SelectDataset, error) {
	if qf == nil {
		return ds, nil
	}
	if qf.FallbackRequired {
		return nil, ErrFallbackRequired
	}
	if qf.Predicate.IsConst(true) {
		return ds, nil
	}
	wc, err := qf.Predicate.ToSQL(columns)
	if err != nil {
		return nil, fmt.Errorf("ABAC-FILTER-TOSQL: %w", err)
	}
	return ds.Where(wc), nil
}

// AddFilterQueryFromContext appends the WHERE clause of the filter stored in
// ctx by the ABAC middleware. When no filter is available, the original
// dataset is returned unchanged.
func AddFilterQueryFromContext(ctx context.Context, ds *goqu.SelectDataset, columns grammar.FieldColumnMapping) (*goqu.SelectDataset, error) {
	return ApplyPredicate(ds, GetQueryFilter(ctx), columns)
}
