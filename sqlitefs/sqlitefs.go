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

// Package sqlitefs provides an afero.Fs that stores files in the "sqlar"
// table of a sqlite database, the format of the sqlite archive tool.
package sqlitefs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"crawshaw.io/sqlite"
	"github.com/spf13/afero"
)

var _ afero.Fs = &FS{}

// FS is a sqlite archive. It must not be used by more than one goroutine
// at a time.
type FS struct {
	cursor *sqlite.Conn
	// spool is the size above which written files are buffered on disk
	spool int64
}

// DefaultSpoolSize is the amount of compressed data held in memory per
// written file.
const DefaultSpoolSize = 32 << 20

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);`

// infoColumns are the columns scanned by scanInfo. Directories are rows
// without data.
const infoColumns = `rowid, name, mode, mtime, sz, data IS NULL AS isdir`

// New opens or creates the archive at url.
func New(url string) (*FS, error) {
	cursor, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}
	fs := &FS{cursor: cursor, spool: DefaultSpoolSize}
	return fs, exec(cursor.Prep(table))
}

// SetSpoolSize sets the amount of compressed data of a written file that
// is held in memory before it is moved to a temporary file.
func (fs *FS) SetSpoolSize(size int64) {
	fs.spool = size
}

func (fs *FS) Name() string {
	return "sqlar"
}

func (fs *FS) Close() error {
	return fs.cursor.Close()
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	return fs.update(name, "mode", int64(mode))
}

func (fs *FS) Chtimes(name string, _ time.Time, mtime time.Time) error {
	return fs.update(name, "mtime", mtime.Unix())
}

// Chown only checks that name exists, sqlar rows carry no owner.
func (fs *FS) Chown(name string, _, _ int) error {
	if _, err := fs.Stat(name); err != nil {
		return &os.PathError{Op: "chown", Path: normalizeFilename(name), Err: os.ErrNotExist}
	}
	return nil
}

// update sets a single metadata column of an archive member.
func (fs *FS) update(name, column string, value int64) error {
	stmt := fs.cursor.Prep("UPDATE sqlar SET " + column + " = $value WHERE name = $name")
	stmt.SetText("$name", normalizeFilename(name))
	stmt.SetInt64("$value", value)
	return exec(stmt)
}

func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	name = normalizeFilename(name)

	if info, err := fs.Stat(name); err == nil {
		if info.IsDir() {
			return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
		}
		return &os.PathError{Op: "mkdir", Path: name, Err: syscall.ENOTDIR}
	}

	stmt := fs.cursor.Prep(`INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, NULL)`)
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm|os.ModeDir))
	stmt.SetInt64("$mtime", time.Now().Unix())
	return exec(stmt)
}

// MkdirAll creates name and every missing parent. Existing directories are
// kept.
func (fs *FS) MkdirAll(name string, perm os.FileMode) error {
	dir := "/"
	_ = fs.Mkdir(dir, perm)
	for _, part := range strings.Split(strings.Trim(normalizeFilename(name), "/"), "/") {
		if part == "" {
			continue
		}
		dir = path.Join(dir, part)
		_ = fs.Mkdir(dir, perm)
	}
	return nil
}

func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens a member for reading or, with os.O_CREATE, replaces it by
// an empty file that is written on Close.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizeFilename(name)

	if flag&os.O_CREATE != 0 {
		id, err := fs.createFile(name, perm)
		if err != nil {
			return nil, err
		}
		if flag&(os.O_RDWR|os.O_WRONLY) == 0 {
			return nil, ErrNotImplemented
		}
		return newWriteItem(fs, id, name)
	}

	id, info, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}

	var children []os.FileInfo
	if info.dir {
		if children, err = fs.selectChildren(name); err != nil {
			return nil, err
		}
	}
	return newReadItem(fs, id, name, info, children)
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	_, info, err := fs.lookup(normalizeFilename(name))
	if err != nil {
		return nil, err
	}
	return info, nil
}

// lookup returns the rowid and info of an archive member.
func (fs *FS) lookup(name string) (int64, *Info, error) {
	stmt := fs.cursor.Prep(`SELECT ` + infoColumns + ` FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return 0, nil, err
	}
	if !hasRow {
		_ = stmt.Reset()
		return 0, nil, os.ErrNotExist
	}
	id, info := scanInfo(stmt)
	info.name = path.Base(info.name)
	return id, info, stmt.Reset()
}

// selectChildren lists the direct members of the directory name.
func (fs *FS) selectChildren(name string) ([]os.FileInfo, error) {
	prefix := strings.TrimSuffix(name, "/") + "/"

	stmt := fs.cursor.Prep(`SELECT ` + infoColumns + ` FROM sqlar WHERE name LIKE $prefix`)
	stmt.SetText("$prefix", prefix+"%")

	var children []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		_, info := scanInfo(stmt)
		rest := strings.TrimPrefix(info.name, prefix)
		if info.name == name || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		info.name = rest
		children = append(children, info)
	}
	return children, stmt.Finalize()
}

func scanInfo(stmt *sqlite.Stmt) (int64, *Info) {
	return stmt.GetInt64("rowid"), &Info{
		name:  stmt.GetText("name"),
		sz:    stmt.GetInt64("sz"),
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   stmt.GetInt64("isdir") == 1,
	}
}

// createFile adds an empty file, an existing file of the same name is
// replaced.
func (fs *FS) createFile(name string, perm os.FileMode) (int64, error) {
	if info, err := fs.Stat(name); err == nil && info.IsDir() {
		return 0, &os.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
	}

	stmt := fs.cursor.Prep(`INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, zeroblob(0))`)
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())

	if err := exec(stmt); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return fs.cursor.LastInsertRowID(), nil
}

func (fs *FS) Remove(name string) error {
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", normalizeFilename(name))
	return exec(stmt)
}

// RemoveAll deletes name and every member below it.
func (fs *FS) RemoveAll(name string) error {
	name = normalizeFilename(name)
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name = $name OR name LIKE $prefix`)
	stmt.SetText("$name", name)
	stmt.SetText("$prefix", strings.TrimSuffix(name, "/")+"/%")
	return exec(stmt)
}

func (fs *FS) Rename(oldname, newname string) error {
	stmt := fs.cursor.Prep("UPDATE sqlar SET name = $newname WHERE name = $oldname")
	stmt.SetText("$oldname", normalizeFilename(oldname))
	stmt.SetText("$newname", normalizeFilename(newname))
	return exec(stmt)
}

// Info describes an archive member.
type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	dir   bool
	name  string
}

func (i *Info) Name() string       { return i.name }
func (i *Info) Size() int64        { return i.sz }
func (i *Info) Mode() os.FileMode  { return i.mode }
func (i *Info) ModTime() time.Time { return i.mtime }
func (i *Info) IsDir() bool        { return i.dir }
func (i *Info) Sys() interface{}   { return nil }

func exec(stmt *sqlite.Stmt) error {
	if _, err := stmt.Step(); err != nil {
		return err
	}
	return stmt.Finalize()
}

func normalizeFilename(name string) string {
	name = strings.Trim(filepath.ToSlash(name), "/")
	if name == "." || name == "" {
		return "/"
	}
	return "/" + name
}
