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
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ChunkSize is the size of a single read from a file in an image.
const ChunkSize = 4096

// readChunks reads content in chunks of ChunkSize until size bytes are read
// or a read returns nothing. It returns the number of bytes read. A read
// fault ends the content, the bytes read so far stay valid.
func readChunks(content io.ReaderAt, size int64, fn func(chunk []byte) error) (int64, error) {
	buf := make([]byte, ChunkSize)
	var offset int64
	for offset < size {
		n := int64(ChunkSize)
		if size-offset < n {
			n = size - offset
		}
		read, _ := content.ReadAt(buf[:n], offset)
		if read <= 0 {
			break
		}
		if err := fn(buf[:read]); err != nil {
			return offset, err
		}
		offset += int64(read)
	}
	return offset, nil
}

// Digest hashes size bytes of content with h and returns the lowercase hex
// digest and the number of bytes hashed.
func Digest(content io.ReaderAt, size int64, h hash.Hash) (string, int64) {
	h.Reset()
	read, _ := readChunks(content, size, func(chunk []byte) error {
		_, err := h.Write(chunk)
		return err
	})
	return hex.EncodeToString(h.Sum(nil)), read
}

// Copier writes file content to an output filesystem.
type Copier struct {
	fs   afero.Fs
	dirs *dirSet
}

// NewCopier creates a Copier writing to fs.
func NewCopier(fs afero.Fs) *Copier {
	return &Copier{fs: fs, dirs: newDirSet(fs)}
}

// Fs returns the output filesystem.
func (c *Copier) Fs() afero.Fs {
	return c.fs
}

// Copy writes size bytes of content to dst, replacing any existing file.
// Missing parent directories are created first. If writing fails, the
// partial copy is removed.
func (c *Copier) Copy(content io.ReaderAt, size int64, dst string) (int64, error) {
	if err := c.dirs.ensure(path.Dir(dst)); err != nil {
		return 0, errors.Wrapf(err, "could not create directory for %s", dst)
	}

	f, err := c.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, errors.Wrapf(err, "could not create %s", dst)
	}

	written, err := readChunks(content, size, func(chunk []byte) error {
		_, err := f.Write(chunk)
		return err
	})
	if err != nil {
		f.Close() // nolint:errcheck
		_ = c.fs.Remove(dst)
		return written, errors.Wrapf(err, "could not write %s", dst)
	}
	if err := f.Close(); err != nil {
		_ = c.fs.Remove(dst)
		return written, errors.Wrapf(err, "could not write %s", dst)
	}
	return written, nil
}
