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

package triage

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies failures during triage.
type ErrorKind int

const (
	// SetupError means an image could not be processed at all, e.g. it
	// cannot be opened or contains no mountable filesystem.
	SetupError ErrorKind = iota + 1
	// EntryError means a single directory entry could not be resolved.
	EntryError
	// IOError means reading a file or writing its copy failed.
	IOError
	// DirectoryError means a directory could not be listed; its subtree
	// is skipped.
	DirectoryError
)

func (k ErrorKind) String() string {
	switch k {
	case SetupError:
		return "setup"
	case EntryError:
		return "entry"
	case IOError:
		return "io"
	case DirectoryError:
		return "directory"
	default:
		return "unknown"
	}
}

// ErrNoImages is returned by Run if no image paths were given.
var ErrNoImages = errors.New("no image files given")

// ErrNoFilesystems is the setup error for images without any mountable
// filesystem.
var ErrNoFilesystems = errors.New("no mountable filesystem found")

// Error is a failure tagged with where it happened. Partition is zero if
// the failure is not bound to a partition.
type Error struct {
	Kind      ErrorKind
	Image     string
	Partition int
	Path      string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Image, e.detail())
}

// detail describes the error without the image name, for loggers that
// are already tagged with it.
func (e *Error) detail() string {
	var b strings.Builder
	if e.Partition > 0 {
		fmt.Fprintf(&b, "partition %d: ", e.Partition)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	fmt.Fprintf(&b, "%s error: %v", e.Kind, e.Err)
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying error for github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.Err }

// IsKind reports whether err is or wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var triageErr *Error
	if errors.As(err, &triageErr) {
		return triageErr.Kind == kind
	}
	return false
}
