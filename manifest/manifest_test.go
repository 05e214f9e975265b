package manifest

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Append(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out/disk.img", 0755))
	w := NewWriter(fs, "/out/disk.img/DirectoryListing-disk.img.csv")

	records := []Record{
		{Image: "disk.img", Partition: 1, ID: 5, Path: "/Windows/System32/config/SAM", Digest: "5e7b6a5f2f0b6f1c1e0c8b6a5f2f0b6f"},
		{Image: "disk.img", Partition: 2, ID: 1234, Path: "/Users/a, b/notes.txt", Digest: ""},
		{Image: "disk.img", Partition: 2, ID: 18446744073709551615, Path: "/\"quoted\".txt", Digest: "00"},
	}
	for _, record := range records {
		require.NoError(t, w.Append(record))
	}

	b, err := afero.ReadFile(fs, w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "disk.img,1,5,/Windows/System32/config/SAM,5e7b6a5f2f0b6f1c1e0c8b6a5f2f0b6f", lines[0])
	assert.Equal(t, `disk.img,2,1234,"/Users/a, b/notes.txt",`, lines[1])

	got, err := Read(fs, w.Path())
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// a second writer appends
	require.NoError(t, NewWriter(fs, w.Path()).Append(records[0]))
	got, err = Read(fs, w.Path())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestWriter_Append_Error(t *testing.T) {
	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/listing.csv")
	assert.Error(t, w.Append(Record{Image: "x"}))
}

func TestScan(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"valid", "a,1,2,/x,ff\na,1,3,/y,\n", 2, false},
		{"columns", "a,1,2,/x\n", 0, true},
		{"partition", "a,one,2,/x,ff\n", 0, true},
		{"id", "a,1,-2,/x,ff\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := 0
			err := Scan(strings.NewReader(tt.data), func(Record) error {
				count++
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(afero.NewMemMapFs(), "/missing.csv")
	assert.Error(t, err)
}
