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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/forensicanalysis/triage/digest"
)

// Validate checks the index against the extracted files. It reports
// elements that do not match their schema, export paths that escape the
// output, sizes and digests that differ from the files on disk, and
// files that are missing or not referenced by any element. Files at the
// top level of the filesystem, like the manifest or the index itself,
// are not expected to be referenced.
func (store *Store) Validate() (flaws []string, err error) {
	flaws = []string{}
	expectedFiles := map[string]bool{}

	elements, err := store.All()
	if err != nil {
		return nil, err
	}
	for _, element := range elements {
		validationErrors, elementExpectedFiles, err := store.validateElement(element)
		if err != nil {
			return nil, err
		}
		flaws = append(flaws, validationErrors...)
		for _, elementExpectedFile := range elementExpectedFiles {
			expectedFiles[filepath.ToSlash(elementExpectedFile)] = true
		}
	}

	foundFiles := map[string]bool{}
	var additionalFiles []string
	err = afero.Walk(store.fs, "/", func(p string, info os.FileInfo, err error) error {
		p = "/" + strings.TrimLeft(filepath.ToSlash(p), "/")
		if info == nil || info.IsDir() || path.Dir(p) == "/" {
			return nil
		}

		foundFiles[p] = true
		if _, ok := expectedFiles[p]; !ok {
			additionalFiles = append(additionalFiles, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(additionalFiles) > 0 {
		sort.Strings(additionalFiles)
		flaws = append(flaws, fmt.Sprintf("additional files: ('%s')", strings.Join(additionalFiles, "', '")))
	}

	var missingFiles []string
	for expectedFile := range expectedFiles {
		if _, ok := foundFiles[expectedFile]; !ok {
			missingFiles = append(missingFiles, expectedFile)
		}
	}

	if len(missingFiles) > 0 {
		sort.Strings(missingFiles)
		flaws = append(flaws, fmt.Sprintf("missing files: ('%s')", strings.Join(missingFiles, "', '")))
	}
	return flaws, nil
}

func (store *Store) validateElement(element JSONElement) (flaws []string, expectedFiles []string, err error) { // nolint:gocyclo
	flaws, err = store.schemas.validate(element)
	if err != nil {
		return nil, nil, err
	}

	var fields map[string]interface{}
	if err = json.Unmarshal(element, &fields); err != nil {
		return nil, nil, err
	}

	for field, value := range fields {
		if !strings.HasSuffix(field, "_path") {
			continue
		}
		exportPath, ok := value.(string)
		if !ok || exportPath == "" {
			continue
		}

		if escapes(exportPath) {
			flaws = append(flaws, fmt.Sprintf("'..' in %s", exportPath))
			continue
		}

		exportPath = "/" + strings.TrimLeft(exportPath, "/")
		expectedFiles = append(expectedFiles, exportPath)

		exists, err := afero.Exists(store.fs, exportPath)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}

		if size, ok := fields["size"].(float64); ok {
			fi, err := store.fs.Stat(exportPath)
			if err != nil {
				return nil, nil, err
			}
			if int64(size) != fi.Size() {
				flaws = append(flaws, fmt.Sprintf("wrong size for %s (is %d, expected %d)", exportPath, fi.Size(), int64(size)))
			}
		}

		hashes, _ := fields["hashes"].(map[string]interface{})
		for algorithm, value := range hashes {
			h, ok := digest.ByKey(algorithm)
			if !ok {
				flaws = append(flaws, fmt.Sprintf("unsupported hash %s for %s", algorithm, exportPath))
				continue
			}

			f, err := store.fs.Open(exportPath)
			if err != nil {
				return nil, nil, err
			}
			_, err = io.Copy(h, f)
			f.Close() // nolint:errcheck
			if err != nil {
				return nil, nil, err
			}

			if fmt.Sprintf("%x", h.Sum(nil)) != value {
				flaws = append(flaws, fmt.Sprintf("hashvalue mismatch %s for %s", algorithm, exportPath))
			}
		}
	}

	return flaws, expectedFiles, nil
}

// escapes reports whether p has a ".." segment. Names that merely contain
// two dots, like "a..b", are fine.
func escapes(p string) bool {
	for _, segment := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return false
}
