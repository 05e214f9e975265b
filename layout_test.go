package triage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout(t *testing.T) {
	layout := Layout{Root: "out"}
	assert.Equal(t, filepath.Join("out", "disk.e01"), layout.ImageDir("disk.e01"))
	assert.Equal(t, filepath.Join("out", "disk.e01", "DirectoryListing-disk.e01.csv"), layout.Manifest("disk.e01"))
	assert.Equal(t, filepath.Join("out", "disk.e01", "item.db"), layout.Index("disk.e01"))
	assert.Equal(t, filepath.Join("out", "disk.e01", "disk.e01.sqlar"), layout.Archive("disk.e01"))
}

func TestExportPath(t *testing.T) {
	type args struct {
		partition int
		dir       string
		name      string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"root", args{1, "/", "$MFT"}, "/1/$MFT"},
		{"nested", args{2, "/Windows/System32/config", "SAM"}, "/2/Windows/System32/config/SAM"},
		{"trailing slash", args{3, "/Users/a/", "NTUSER.DAT"}, "/3/Users/a/NTUSER.DAT"},
		{"pseudo partition", args{0, "/etc", "hosts"}, "/0/etc/hosts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExportPath(tt.args.partition, tt.args.dir, tt.args.name); got != tt.want {
				t.Errorf("ExportPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageFromManifest(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOk bool
	}{
		{"DirectoryListing-disk.img.csv", "disk.img", true},
		{ManifestName("a b.e01"), "a b.e01", true},
		{"DirectoryListing-.csv", "", false},
		{"item.db", "", false},
		{"DirectoryListing-disk.img.txt", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ImageFromManifest(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "disk.img", ImageName("/cases/42/disk.img"))
	assert.Equal(t, "disk.img", ImageName("disk.img"))
}
