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

package store

import (
	"fmt"
	"strconv"
)

// flatten returns the leaves of a decoded JSON element keyed by their dot
// separated path, e.g. "origin.image". Empty maps, empty lists and nulls
// have no leaves.
func flatten(nested map[string]interface{}) map[string]interface{} {
	flat := map[string]interface{}{}
	for k, v := range nested {
		flattenInto(flat, k, v)
	}
	return flat
}

func flattenInto(flat map[string]interface{}, prefix string, value interface{}) {
	switch value := value.(type) {
	case nil:
	case map[string]interface{}:
		for k, v := range value {
			flattenInto(flat, prefix+"."+k, v)
		}
	case map[string]string:
		for k, v := range value {
			flat[prefix+"."+k] = v
		}
	case []interface{}:
		for i, v := range value {
			flattenInto(flat, prefix+"."+strconv.Itoa(i), v)
		}
	case []string:
		for i, v := range value {
			flat[prefix+"."+strconv.Itoa(i)] = v
		}
	case string, bool, float64, float32, int, int64, uint64, fmt.Stringer:
		flat[prefix] = value
	default:
		flat[prefix] = fmt.Sprint(value)
	}
}
