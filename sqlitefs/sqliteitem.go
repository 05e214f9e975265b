package sqlitefs

import (
	"compress/flate"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path"

	"github.com/forensicanalysis/triage/sqlitefs/spooled"
)

var ErrNotImplemented = errors.New("not implemented")

type item struct {
	fs   *FS
	path string

	// reader item
	info         os.FileInfo
	blob         io.ReadCloser
	uncompressor io.ReadCloser
	children     []os.FileInfo
	offset       int64

	// writer item
	id          int64
	writeBuffer *spooled.TemporaryFile
	compressor  *flate.Writer
	size        int64
}

// newWriteItem compresses written data into a spooled buffer, which is
// copied into the data blob on Close.
func newWriteItem(fs *FS, id int64, path string) (*item, error) {
	buf, _ := spooled.New(fs.spool)
	i := &item{fs: fs, id: id, path: path, writeBuffer: buf}

	var err error
	i.compressor, err = flate.NewWriter(i.writeBuffer, flate.DefaultCompression)
	if err != nil {
		buf.Close() // nolint:errcheck
		return nil, err
	}
	return i, nil
}

func newReadItem(fs *FS, id int64, path string, info os.FileInfo, children []os.FileInfo) (*item, error) {
	i := &item{fs: fs, path: path, info: info, children: children}

	if !info.IsDir() {
		blob, err := i.fs.cursor.OpenBlob("", "sqlar", "data", id, false)
		if err != nil {
			return nil, err
		}
		i.blob = blob
		i.uncompressor = flate.NewReader(i.blob)
	}

	return i, nil
}

func (i *item) Name() string {
	return path.Base(i.path)
}

func (i *item) Read(p []byte) (n int, err error) {
	if i.uncompressor == nil {
		return 0, ErrNotImplemented
	}
	n, err = i.uncompressor.Read(p)
	i.offset += int64(n)
	return n, err
}

// ReadAt only reads forward, the content is decompressed as a stream.
func (i *item) ReadAt(p []byte, off int64) (n int, err error) {
	if i.uncompressor == nil || off < i.offset {
		return 0, ErrNotImplemented
	}
	if off > i.offset {
		skipped, err := io.CopyN(ioutil.Discard, i.uncompressor, off-i.offset)
		i.offset += skipped
		if err != nil {
			return 0, err
		}
	}
	n, err = io.ReadFull(i.uncompressor, p)
	i.offset += int64(n)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (i *item) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotImplemented
}

func (i *item) Readdir(count int) ([]os.FileInfo, error) {
	n := len(i.children)
	if count > 0 && count < n {
		n = count
	}
	return i.children[:n], nil
}

func (i *item) Readdirnames(n int) ([]string, error) {
	var names []string
	for c, child := range i.children {
		if c >= n && n > 0 {
			break
		}
		names = append(names, child.Name())
	}
	return names, nil
}

func (i *item) Stat() (os.FileInfo, error) {
	if i.info == nil {
		return i.fs.Stat(i.path)
	}
	return i.info, nil
}

func (i *item) Write(p []byte) (n int, err error) {
	if i.compressor == nil {
		return 0, ErrNotImplemented
	}
	i.size += int64(len(p))
	return i.compressor.Write(p)
}

func (i *item) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, ErrNotImplemented
}

func (i *item) WriteString(s string) (ret int, err error) {
	return i.Write([]byte(s))
}

func (i *item) Close() error {
	switch {
	case i.uncompressor != nil:
		if err := i.uncompressor.Close(); err != nil {
			return err
		}
		return i.blob.Close()
	case i.compressor != nil:
		defer i.writeBuffer.Close()
		err := i.compressor.Close()
		i.compressor = nil
		if err != nil {
			return err
		}
		return i.flush()
	}
	return nil
}

// flush stores the compressed content in the sqlar row of the item.
func (i *item) flush() error {
	compressed, err := i.writeBuffer.Size()
	if err != nil {
		return err
	}

	stmt := i.fs.cursor.Prep(`UPDATE sqlar SET sz = $sz, data = $data WHERE rowid = $id`)
	stmt.SetInt64("$id", i.id)
	stmt.SetZeroBlob("$data", compressed)
	stmt.SetInt64("$sz", i.size)
	if err := exec(stmt); err != nil {
		return err
	}

	blob, err := i.fs.cursor.OpenBlob("", "sqlar", "data", i.id, true)
	if err != nil {
		return err
	}
	if _, err = io.Copy(blob, i.writeBuffer); err != nil {
		blob.Close() // nolint:errcheck
		return err
	}
	return blob.Close()
}

func (i *item) Truncate(size int64) error {
	return ErrNotImplemented
}

func (i *item) Sync() error {
	if i.compressor != nil {
		return i.compressor.Flush()
	}
	return nil
}
