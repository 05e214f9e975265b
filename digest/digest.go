// Copyright (c) 2021 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package digest maps the digest algorithm names of the command line and
// config files to hash implementations and to the keys used in the hashes
// dictionary of index elements.
package digest

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"hash"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// ErrUnknown is returned for digest algorithms that are not supported.
var ErrUnknown = errors.New("unknown hash algorithm")

// Default is the digest algorithm of the manifest.
const Default = "md5"

var algorithms = map[string]struct {
	key string
	new func() hash.Hash
}{
	"md5":    {"MD5", md5.New},
	"sha1":   {"SHA-1", sha1.New},
	"sha256": {"SHA-256", sha256.New},
	"blake3": {"BLAKE3", func() hash.Hash { return blake3.New() }},
}

// New returns a hash for the algorithm name, e.g. "sha256".
func New(name string) (hash.Hash, error) {
	a, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrap(ErrUnknown, name)
	}
	return a.new(), nil
}

// Key returns the key an algorithm is stored as in a hashes dictionary,
// e.g. "SHA-256".
func Key(name string) (string, error) {
	a, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return "", errors.Wrap(ErrUnknown, name)
	}
	return a.key, nil
}

// ByKey returns a hash for a hashes dictionary key. "SHA1" is accepted
// for "SHA-1".
func ByKey(key string) (hash.Hash, bool) {
	if key == "SHA1" {
		key = "SHA-1"
	}
	for _, a := range algorithms {
		if a.key == key {
			return a.new(), true
		}
	}
	return nil, false
}

// Names lists the supported algorithm names.
func Names() []string {
	var names []string
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
