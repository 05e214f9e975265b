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

package sqlitefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	samPath = "/1/Windows/System32/config/SAM"
	logPath = "/1/Windows/System32/winevt/Logs/Security.evtx"
)

// triageArchive returns an archive laid out like the output of a run.
func triageArchive(t *testing.T) *FS {
	fs, err := New(filepath.Join(t.TempDir(), "case.sqlar"))
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	require.NoError(t, fs.MkdirAll(filepath.Dir(samPath), 0755))
	require.NoError(t, afero.WriteFile(fs, samPath, []byte(strings.Repeat("regf", 1000)), 0644))
	require.NoError(t, fs.MkdirAll(filepath.Dir(logPath), 0755))
	require.NoError(t, afero.WriteFile(fs, logPath, []byte("ElfFile"), 0644))
	return fs
}

func TestFS_Stat(t *testing.T) {
	fs := triageArchive(t)

	tests := []struct {
		name     string
		path     string
		wantName string
		wantSize int64
		wantDir  bool
		wantErr  bool
	}{
		{"file", samPath, "SAM", 4000, false, false},
		{"windows path", `1\Windows\System32\config\SAM`, "SAM", 4000, false, false},
		{"directory", "/1/Windows", "Windows", 0, true, false},
		{"root", "/", "/", 0, true, false},
		{"missing", "/1/Windows/System32/config/SYSTEM", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := fs.Stat(tt.path)
			if tt.wantErr {
				assert.True(t, os.IsNotExist(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, info.Name())
			assert.Equal(t, tt.wantSize, info.Size())
			assert.Equal(t, tt.wantDir, info.IsDir())
			assert.Equal(t, tt.wantDir, info.Mode().IsDir())
		})
	}
}

func TestFS_EmptyFileIsNoDirectory(t *testing.T) {
	fs := triageArchive(t)

	require.NoError(t, afero.WriteFile(fs, "/1/empty.txt", nil, 0644))

	info, err := fs.Stat("/1/empty.txt")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Zero(t, info.Size())
}

func TestFS_Mkdir(t *testing.T) {
	fs := triageArchive(t)

	tests := []struct {
		name    string
		dir     string
		wantErr func(error) bool
	}{
		{"new", "/2", nil},
		{"existing", "/1/Windows", os.IsExist},
		{"file", samPath, func(err error) bool { return err != nil && !os.IsExist(err) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.Mkdir(tt.dir, 0755)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error %v", err)
				return
			}
			require.NoError(t, err)
			info, err := fs.Stat(tt.dir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}
}

func TestFS_MkdirAll(t *testing.T) {
	fs := triageArchive(t)

	require.NoError(t, fs.MkdirAll("/2/Users/alice/AppData", 0755))
	require.NoError(t, fs.MkdirAll("/2/Users/alice/AppData", 0755))

	for _, dir := range []string{"/2", "/2/Users", "/2/Users/alice", "/2/Users/alice/AppData"} {
		info, err := fs.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestFS_Create(t *testing.T) {
	fs := triageArchive(t)

	_, err := fs.Create("/1/Windows")
	assert.Error(t, err)

	f, err := fs.Create(samPath)
	require.NoError(t, err)
	_, err = f.WriteString("replaced")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := afero.ReadFile(fs, samPath)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(got))
}

func TestFS_Open(t *testing.T) {
	fs := triageArchive(t)

	_, err := fs.Open("/2/SAM")
	assert.True(t, os.IsNotExist(err))

	infos, err := afero.ReadDir(fs, "/1/Windows/System32")
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
		assert.True(t, info.IsDir())
	}
	assert.ElementsMatch(t, []string{"config", "winevt"}, names)
}

func TestFS_Walk(t *testing.T) {
	fs := triageArchive(t)

	var files []string
	err := afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(p))
		}
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{samPath, logPath}, files)
}

func TestFS_Remove(t *testing.T) {
	fs := triageArchive(t)

	require.NoError(t, fs.Remove(samPath))
	_, err := fs.Stat(samPath)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, fs.RemoveAll("/1/Windows/System32/winevt"))
	_, err = fs.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
	_, err = fs.Stat("/1/Windows/System32")
	assert.NoError(t, err)
}

func TestFS_Rename(t *testing.T) {
	fs := triageArchive(t)

	require.NoError(t, fs.Rename(samPath, "/1/SAM.bak"))
	_, err := fs.Stat(samPath)
	assert.True(t, os.IsNotExist(err))
	got, err := afero.ReadFile(fs, "/1/SAM.bak")
	require.NoError(t, err)
	assert.Len(t, got, 4000)
}

func TestFS_Metadata(t *testing.T) {
	fs := triageArchive(t)
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	require.NoError(t, fs.Chmod(samPath, 0600))
	require.NoError(t, fs.Chtimes(samPath, time.Now(), mtime))
	require.NoError(t, fs.Chown(samPath, 1000, 1000))

	info, err := fs.Stat(samPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode())
	assert.True(t, mtime.Equal(info.ModTime()))

	err = fs.Chown("/1/missing", 0, 0)
	assert.True(t, os.IsNotExist(err))
}

func TestFS_AsAferoFs(t *testing.T) {
	var fs afero.Fs = triageArchive(t)

	ok, err := afero.Exists(fs, logPath)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sqlar", fs.Name())
}
