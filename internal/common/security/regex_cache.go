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
	"fmt"
	"regexp"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultRegexCacheSize bounds the number of compiled $regex patterns kept
// when no size is configured.
const DefaultRegexCacheSize int64 = 1024

// regexCache holds compiled $regex patterns keyed by their source text.
// Patterns that fail to compile are not cached.
type regexCache struct {
	cache *ristretto.Cache[string, *regexp.Regexp]
}

func newRegexCache(maxEntries int64) (*regexCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultRegexCacheSize
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *regexp.Regexp]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ABAC-REGEXCACHE-INIT: %w", err)
	}
	return &regexCache{cache: c}, nil
}

func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache.Set(pattern, re, 1)
	return re, nil
}

func (c *regexCache) close() {
	c.cache.Close()
}
