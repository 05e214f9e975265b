package cmd

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/forensicanalysis/triage/manifest"
)

func writeFile(t *testing.T, name, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
	require.NoError(t, ioutil.WriteFile(name, []byte(content), 0644))
}

// logicalImage creates an image directory with a mountable partition and
// a partition without filesystem.
func logicalImage(t *testing.T) string {
	image := filepath.Join(t.TempDir(), "disk.img")
	writeFile(t, filepath.Join(image, "p1", "Windows", "System32", "config", "SAM"), "sam")
	writeFile(t, filepath.Join(image, "p1", "Users", "a", "NTUSER.DAT"), "ntuser")
	writeFile(t, filepath.Join(image, "p1", "tmp", "notes.txt"), "notes")
	writeFile(t, filepath.Join(image, "p2"), "swap")
	return image
}

func execute(t *testing.T, args ...string) (string, error) {
	var cmd = Run()
	switch args[0] {
	case "verify":
		cmd = Verify()
	case "ls":
		cmd = Ls()
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args[1:])
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		files     []string
		noFiles   []string
		index     bool
		wantErr   bool
		wantTable string
	}{
		{
			"full",
			[]string{"--logical"},
			[]string{"disk.img/1/Windows/System32/config/SAM", "disk.img/1/Users/a/NTUSER.DAT", "disk.img/DirectoryListing-disk.img.csv"},
			[]string{"disk.img/1/tmp/notes.txt"},
			false, false, "disk.img",
		},
		{
			"quick",
			[]string{"--logical", "--quick"},
			[]string{"disk.img/1/Windows/System32/config/SAM"},
			[]string{"disk.img/1/Users/a/NTUSER.DAT", "disk.img/DirectoryListing-disk.img.csv"},
			false, false, "disk.img",
		},
		{
			"index",
			[]string{"--logical", "--index", "--hash", "sha256"},
			[]string{"disk.img/item.db", "disk.img/DirectoryListing-disk.img.csv"},
			nil,
			true, false, "disk.img",
		},
		{
			"archive",
			[]string{"--logical", "--archive"},
			[]string{"disk.img/disk.img.sqlar"},
			[]string{"disk.img/1/Windows/System32/config/SAM"},
			false, false, "disk.img",
		},
		{
			"unknown hash",
			[]string{"--logical", "--hash", "crc"},
			nil, nil, false, true, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := logicalImage(t)
			out := t.TempDir()

			args := append([]string{"run"}, tt.args...)
			args = append(args, out, image, filepath.Join(out, "missing.img"))
			table, err := execute(t, args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Contains(t, table, tt.wantTable)

			for _, name := range tt.files {
				assert.FileExists(t, filepath.Join(out, filepath.FromSlash(name)))
			}
			for _, name := range tt.noFiles {
				assert.NoFileExists(t, filepath.Join(out, filepath.FromSlash(name)))
			}

			if tt.wantErr {
				return
			}
			hash := "md5"
			if tt.index {
				hash = "sha256"
			}
			flaws, err := execute(t, "verify", "--hash", hash, out)
			assert.NoError(t, err, flaws)
		})
	}
}

func TestRun_NoImages(t *testing.T) {
	out := t.TempDir()
	_, err := execute(t, "run", out, filepath.Join(out, "missing.img"))
	assert.Error(t, err)

	_, err = execute(t, "run", out)
	assert.Error(t, err)
}

func TestVerify_Mismatch(t *testing.T) {
	image := logicalImage(t)
	out := t.TempDir()
	_, err := execute(t, "run", "--logical", out, image)
	require.NoError(t, err)

	writeFile(t, filepath.Join(out, "disk.img", "1", "Windows", "System32", "config", "SAM"), "changed")

	flaws, err := execute(t, "verify", out)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, flaws, "[disk.img] digest mismatch for /1/Windows/System32/config/SAM")

	_, err = execute(t, "verify", "--no-fail", out)
	assert.NoError(t, err)
}

func TestLs(t *testing.T) {
	image := logicalImage(t)
	out := t.TempDir()
	_, err := execute(t, "run", "--logical", out, image)
	require.NoError(t, err)

	listing, err := execute(t, "ls", "--glob", "**/SAM", out)
	require.NoError(t, err)
	assert.Equal(t, "/disk.img/1/Windows/System32/config/SAM\n", listing)

	listing, err = execute(t, "ls", "--glob", "**/*.csv", out)
	require.NoError(t, err)
	assert.Equal(t, "/disk.img/DirectoryListing-disk.img.csv\n", listing)
}

// ntfsImage decompresses the NTFS volume image of the diskimage tests.
func ntfsImage(t *testing.T) string {
	f, err := os.Open(filepath.Join("..", "provider", "diskimage", "testdata", "ntfs.dd.xz"))
	require.NoError(t, err)
	defer f.Close()
	r, err := xz.NewReader(f)
	require.NoError(t, err)

	name := filepath.Join(t.TempDir(), "ntfs.dd")
	out, err := os.Create(name)
	require.NoError(t, err)
	defer out.Close()
	_, err = io.Copy(out, r)
	require.NoError(t, err)
	return name
}

func TestRun_NTFSImage(t *testing.T) {
	image := ntfsImage(t)
	out := t.TempDir()

	table, err := execute(t, "run", out, image)
	require.NoError(t, err)
	assert.Contains(t, table, "ntfs.dd")

	records, err := manifest.Read(afero.NewOsFs(), filepath.Join(out, "ntfs.dd", "DirectoryListing-ntfs.dd.csv"))
	require.NoError(t, err)

	found := false
	for _, record := range records {
		if record.Path != "/Folder A/Folder B/Hello world text document.txt" {
			continue
		}
		found = true
		assert.Equal(t, "ntfs.dd", record.Image)
		assert.Equal(t, 1, record.Partition)
		assert.EqualValues(t, 46, record.ID)
		assert.Equal(t, "86fb269d190d2c85f6e0468ceca42a20", record.Digest)
	}
	assert.True(t, found, "file missing in directory listing")
}
