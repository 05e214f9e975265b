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

// Package manifest writes and reads the directory listings of a triage run.
// A manifest is a headerless CSV file with one row per regular file:
//
//	image, partition, file id, absolute path, hex digest
//
// Every Append opens, writes and closes the file, so an interrupted run
// loses at most the row being written.
package manifest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const columns = 5

// Record is one row of a manifest. Digest is empty if the file content
// could not be read.
type Record struct {
	Image     string
	Partition int
	ID        uint64
	Path      string
	Digest    string
}

func (r Record) row() []string {
	return []string{
		r.Image,
		strconv.Itoa(r.Partition),
		strconv.FormatUint(r.ID, 10),
		r.Path,
		r.Digest,
	}
}

func parseRow(row []string) (Record, error) {
	if len(row) != columns {
		return Record{}, errors.Errorf("expected %d columns, got %d", columns, len(row))
	}
	partition, err := strconv.Atoi(row[1])
	if err != nil {
		return Record{}, errors.Wrap(err, "invalid partition")
	}
	id, err := strconv.ParseUint(row[2], 10, 64)
	if err != nil {
		return Record{}, errors.Wrap(err, "invalid file id")
	}
	return Record{Image: row[0], Partition: partition, ID: id, Path: row[3], Digest: row[4]}, nil
}

// Writer appends records to a manifest file.
type Writer struct {
	fs   afero.Fs
	path string
}

// NewWriter creates a Writer for the manifest at name on fs. The file is
// created on the first Append.
func NewWriter(fs afero.Fs, name string) *Writer {
	return &Writer{fs: fs, path: name}
}

// Path returns the manifest file name.
func (w *Writer) Path() string {
	return w.path
}

// Append adds a single record to the end of the manifest.
func (w *Writer) Append(record Record) error {
	f, err := w.fs.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not open manifest %s", w.path)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(record.row()); err != nil {
		f.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not write manifest %s", w.path)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not write manifest %s", w.path)
	}
	return f.Close()
}

// Read returns all records of a manifest.
func Read(fs afero.Fs, name string) ([]Record, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	err = Scan(f, func(record Record) error {
		records = append(records, record)
		return nil
	})
	return records, err
}

// Scan calls fn for every record read from r.
func Scan(r io.Reader, fn func(record Record) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columns
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		record, err := parseRow(row)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}
