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
	"path"
	"strings"

	"github.com/forensicanalysis/triage/digest"
	"github.com/forensicanalysis/triage/manifest"
)

// FileIndex inserts a file element for every processed file.
type FileIndex struct {
	store   *Store
	hashKey string
}

// NewFileIndex creates a FileIndex that stores digests under the key of
// the named algorithm.
func NewFileIndex(store *Store, algorithm string) (*FileIndex, error) {
	key, err := digest.Key(algorithm)
	if err != nil {
		return nil, err
	}
	return &FileIndex{store: store, hashKey: key}, nil
}

// IndexFile adds a file element for record. exportPath is empty if the
// file was not extracted.
func (i *FileIndex) IndexFile(record manifest.Record, size int64, exportPath string) error {
	file := NewFile()
	file.Name = path.Base(record.Path)
	file.Size = float64(size)
	file.Origin = map[string]interface{}{
		"image":     record.Image,
		"partition": record.Partition,
		"path":      record.Path,
		"inode":     record.ID,
	}
	if record.Digest != "" {
		file.Hashes = map[string]interface{}{i.hashKey: record.Digest}
	} else {
		file.AddError("content could not be read")
	}
	if exportPath != "" {
		file.ExportPath = strings.TrimLeft(exportPath, "/")
	}

	_, err := i.store.InsertStruct(*file)
	return err
}
