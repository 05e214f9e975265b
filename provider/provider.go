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

// Package provider describes the image, partition and filesystem access the
// triage engine needs. Decoding of partition tables and on-disk filesystem
// structures happens behind these interfaces; see the aferofs and diskimage
// subpackages for implementations.
package provider

import (
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoFilesystem is returned by Image.Mount if no known filesystem exists at
// the given offset. Any other Mount error is an I/O error.
var ErrNoFilesystem = errors.New("no filesystem found")

// ErrNotFound is returned by Resolve if a path does not exist.
var ErrNotFound = errors.New("entry not found")

// Provider opens images.
type Provider interface {
	OpenImage(path string) (Image, error)
}

// Image is an opened disk image.
type Image interface {
	// Partitions returns the entries of the partition table.
	Partitions() ([]Partition, error)
	// SectorSize is the size of the units Partition.Start and
	// Partition.Length are given in.
	SectorSize() int64
	// Mount opens the filesystem that starts at the byte offset.
	Mount(offset int64) (Filesystem, error)
	Close() error
}

// Partition is one entry of a partition table. Start and Length are
// given in sectors.
type Partition struct {
	Index       int
	Description string
	Start       int64
	Length      int64
}

// Kind is the type of a directory entry.
type Kind int

// Entry kinds. Symlinks, devices and everything else are KindOther.
const (
	KindOther Kind = iota
	KindRegular
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	default:
		return "other"
	}
}

// Entry is a name resolved in a filesystem.
type Entry struct {
	Name string
	// Path is the absolute, slash separated path within the filesystem.
	Path string
	// ID is the inode or record address of the entry.
	ID   uint64
	Kind Kind
	Size int64
	// Allocated is false for entries that only remain in unallocated
	// directory slack.
	Allocated bool
	// Meta is false if the metadata structure of the entry could not be
	// resolved. Kind, Size and ID are meaningless in that case.
	Meta bool
}

// Filesystem is a mounted filesystem.
type Filesystem interface {
	Root() (*Entry, error)
	// ReadDir lists the immediate entries of a directory.
	ReadDir(dir *Entry) ([]*Entry, error)
	// Open returns the content of an entry.
	Open(entry *Entry) (Content, error)
}

// Content is an opened file. ReadAt returns fewer bytes at the end of the
// content and zero bytes once nothing more can be read.
type Content interface {
	io.ReaderAt
	io.Closer
}

// NopCloser turns an io.ReaderAt without resources into Content.
func NopCloser(r io.ReaderAt) Content {
	return nopCloser{r}
}

type nopCloser struct {
	io.ReaderAt
}

func (nopCloser) Close() error { return nil }

// Resolve finds the entry for an absolute path by listing every directory
// on the way down from the root. Names are compared exactly.
func Resolve(fs Filesystem, fullPath string) (*Entry, error) {
	entry, err := fs.Root()
	if err != nil {
		return nil, err
	}

	cleaned := path.Clean("/" + strings.TrimLeft(fullPath, "/"))
	if cleaned == "/" {
		return entry, nil
	}

	for _, component := range strings.Split(cleaned[1:], "/") {
		if entry.Kind != KindDirectory {
			return nil, errors.Wrap(ErrNotFound, fullPath)
		}
		children, err := fs.ReadDir(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "could not list %s", entry.Path)
		}
		var next *Entry
		for _, child := range children {
			if child.Name == component && child.Meta && child.Allocated {
				next = child
				break
			}
		}
		if next == nil {
			return nil, errors.Wrap(ErrNotFound, fullPath)
		}
		entry = next
	}
	return entry, nil
}
