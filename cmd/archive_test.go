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

package cmd

import (
	"bytes"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/triage/sqlitefs"
)

func TestNormalizeFilePath(t *testing.T) {
	x32 := strings.Repeat("x", 32)
	longFileName := strings.Repeat("long_file_name_", 8)

	pathTests := []struct {
		name              string
		srcPath           string
		normalizedSrcPath string
	}{
		{"Windows path", `/1/Users/user/NTUSER.DAT`, `1_Users_user_NTUSER.DAT`},
		{"Linux path", `/home/username/.bash_history`, `home_username_.bash_history`},
		{
			"Long path",
			`/1/Users/user/AppData/Local/Google/Chrome/User Data/Default/Extensions/` + x32 + `/1.11_1/_metadata/folder_` + x32 + `/` + longFileName + `.json`,
			`AppD_Loca_Goog_Chro_User_Defa_Exte_xxxx_1.11__met_fold_long.json`,
		},
	}

	for _, pt := range pathTests {
		t.Run(pt.name, func(t *testing.T) {
			got := normalizeFilePath(pt.srcPath)

			if got != pt.normalizedSrcPath {
				t.Fatalf("need %v, got %v", pt.normalizedSrcPath, got)
			}
		})
	}
}

func Test_last(t *testing.T) {
	type args struct {
		s string
		n int
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"long", args{"abcdef", 2}, "ef"},
		{"short", args{"abc", 4}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := last(tt.args.s, tt.args.n); got != tt.want {
				t.Errorf("last() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_destinationPath(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want string
	}{
		{"folder", "folder", "1/Windows/System32/config/SAM"},
		{"compact", "compact", "1_Windows_System32_config_SAM"},
		{"basename", "basename", "SAM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, destinationPath("/1/Windows/System32/config/SAM", tt.mode))
		})
	}
}

var testFiles = map[string]string{
	"/disk.img/1/Windows/System32/config/SAM":                          "sam",
	"/disk.img/1/Windows/System32/winevt/Logs/System.evtx":             "evtx",
	"/disk.img/2/Users/a/NTUSER.DAT":                                   "ntuser",
	"/disk.img/2/Users/a/AppData/Local/Microsoft/Windows/UsrClass.dat": "usrclass",
	"/disk.img/DirectoryListing-disk.img.csv":                          "csv",
}

// testOutput returns an output directory on disk as written by a run.
func testOutput(t *testing.T) afero.Fs {
	fs := afero.NewBasePathFs(afero.NewOsFs(), t.TempDir())
	for name, content := range testFiles {
		require.NoError(t, fs.MkdirAll(path.Dir(name), 0755))
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
	return fs
}

// testArchive returns the same files in a sqlite archive.
func testArchive(t *testing.T) afero.Fs {
	archive, err := sqlitefs.New(filepath.Join(t.TempDir(), "disk.sqlar"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	for name, content := range testFiles {
		require.NoError(t, archive.MkdirAll(path.Dir(name), 0755))
		require.NoError(t, afero.WriteFile(archive, name, []byte(content), 0644))
	}
	return archive
}

func Test_expandDoubleStar(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"bare", "**", "**64"},
		{"leading slash", "/2/**/*.evtx", "2/**64/*.evtx"},
		{"explicit depth", "**2/SAM", "**2/SAM"},
		{"no double star", "*/1/SAM", "*/1/SAM"},
		{"inside name", "a**b/SAM", "a**b/SAM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandDoubleStar(tt.pattern))
		})
	}
}

func Test_glob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"all", "**", []string{
			"/disk.img/1/Windows/System32/config/SAM",
			"/disk.img/1/Windows/System32/winevt/Logs/System.evtx",
			"/disk.img/2/Users/a/NTUSER.DAT",
			"/disk.img/2/Users/a/AppData/Local/Microsoft/Windows/UsrClass.dat",
			"/disk.img/DirectoryListing-disk.img.csv",
		}},
		{"evtx", "**/*.evtx", []string{"/disk.img/1/Windows/System32/winevt/Logs/System.evtx"}},
		{"hive", "**/SAM", []string{"/disk.img/1/Windows/System32/config/SAM"}},
		{"deep", "**/UsrClass.dat", []string{"/disk.img/2/Users/a/AppData/Local/Microsoft/Windows/UsrClass.dat"}},
		{"partition", "/disk.img/2/**/NTUSER.DAT", []string{"/disk.img/2/Users/a/NTUSER.DAT"}},
		{"listing", "**/*.csv", []string{"/disk.img/DirectoryListing-disk.img.csv"}},
		{"depth limited", "**2/SAM", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, src := range map[string]afero.Fs{"directory": testOutput(t), "archive": testArchive(t)} {
				got, err := glob(src, tt.pattern)
				require.NoError(t, err, name)
				assert.ElementsMatch(t, tt.want, got, name)
			}
		})
	}
}

func Test_unpack(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want string
	}{
		{"folder", "folder", "/disk.img/2/Users/a/NTUSER.DAT"},
		{"basename", "basename", "/NTUSER.DAT"},
		{"compact", "compact", "/disk.img_2_Users_a_NTUSER.DAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := afero.NewMemMapFs()
			var out bytes.Buffer
			require.NoError(t, unpack(testOutput(t), dest, tt.mode, &out))

			b, err := afero.ReadFile(dest, tt.want)
			require.NoError(t, err)
			assert.Equal(t, "ntuser", string(b))
			assert.Contains(t, out.String(), "unpack '/disk.img/2/Users/a/NTUSER.DAT'")
		})
	}
}
