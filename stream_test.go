package triage

import (
	"bytes"
	"crypto/md5" // #nosec
	"crypto/sha256"
	"hash"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestDigest(t *testing.T) {
	long := strings.Repeat("0123456789abcdef", 1000)

	tests := []struct {
		name    string
		content string
		h       hash.Hash
		want    string
	}{
		{"empty md5", "", md5.New(), "d41d8cd98f00b204e9800998ecf8427e"}, // #nosec
		{"empty sha256", "", sha256.New(), "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"empty blake3", "", blake3.New(), "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{"abc md5", "abc", md5.New(), "900150983cd24fb0d6963f7d28e17f72"}, // #nosec
		{"multiple chunks", long, md5.New(), md5hex(long)},                 // #nosec
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.NewReader(tt.content)
			got, read := Digest(content, int64(len(tt.content)), tt.h)
			assert.Equal(t, tt.want, got)
			assert.EqualValues(t, len(tt.content), read)

			// reusing the hash gives the same digest
			again, _ := Digest(content, int64(len(tt.content)), tt.h)
			assert.Equal(t, got, again)
		})
	}
}

func TestDigest_ShortRead(t *testing.T) {
	content := &fakeContent{data: bytes.Repeat([]byte("x"), 3*ChunkSize), faultAt: ChunkSize + 10}
	got, read := Digest(content, 3*ChunkSize, md5.New()) // #nosec
	assert.EqualValues(t, ChunkSize+10, read)
	assert.Equal(t, md5hex(strings.Repeat("x", ChunkSize+10)), got)
}

// failingFs fails writes after limit bytes.
type failingFs struct {
	afero.Fs
	limit int
}

type failingFile struct {
	afero.File
	left int
}

func (f *failingFile) Write(p []byte) (int, error) {
	if len(p) > f.left {
		return 0, os.ErrPermission
	}
	f.left -= len(p)
	return f.File.Write(p)
}

func (fs *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: f, left: fs.limit}, nil
}

func TestCopier_Copy(t *testing.T) {
	long := strings.Repeat("z", 2*ChunkSize+100)

	tests := []struct {
		name    string
		fs      afero.Fs
		content string
		wantErr bool
	}{
		{"small", afero.NewMemMapFs(), "hive", false},
		{"chunks", afero.NewMemMapFs(), long, false},
		{"empty", afero.NewMemMapFs(), "", false},
		{"write fails", &failingFs{Fs: afero.NewMemMapFs(), limit: ChunkSize}, long, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copier := NewCopier(tt.fs)
			dst := "/1/Windows/System32/config/SYSTEM"

			written, err := copier.Copy(strings.NewReader(tt.content), int64(len(tt.content)), dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Copy() error = %v, wantErr %v", err, tt.wantErr)
			}

			exists, _ := afero.Exists(tt.fs, dst)
			if tt.wantErr {
				assert.False(t, exists, "partial copy not removed")
				return
			}
			assert.EqualValues(t, len(tt.content), written)
			b, err := afero.ReadFile(tt.fs, dst)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(b))
		})
	}
}

func TestCopier_Overwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	copier := NewCopier(fs)

	_, err := copier.Copy(strings.NewReader("a much longer first version"), 27, "/1/SAM")
	require.NoError(t, err)
	_, err = copier.Copy(strings.NewReader("second"), 6, "/1/SAM")
	require.NoError(t, err)

	b, err := afero.ReadFile(fs, "/1/SAM")
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))
	assert.Equal(t, []string{"/1"}, copier.dirs.all())
}
