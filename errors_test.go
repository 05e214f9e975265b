package triage

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"setup", &Error{Kind: SetupError, Image: "disk.img", Err: ErrNoFilesystems},
			"[disk.img] setup error: no mountable filesystem found"},
		{"partition", &Error{Kind: IOError, Image: "disk.img", Partition: 2, Path: "/$MFT", Err: errFault},
			"[disk.img] partition 2: /$MFT: io error: bad sector"},
		{"directory", &Error{Kind: DirectoryError, Image: "x", Partition: 1, Path: "/Users", Err: errors.New("corrupt")},
			"[x] partition 1: /Users: directory error: corrupt"},
		{"unknown kind", &Error{Image: "x", Err: errors.New("e")}, "[x] unknown error: e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	entryErr := &Error{Kind: EntryError, Image: "x", Err: errFault}
	wrapped := errors.Wrap(entryErr, "walk")

	assert.True(t, IsKind(entryErr, EntryError))
	assert.True(t, IsKind(wrapped, EntryError))
	assert.False(t, IsKind(wrapped, IOError))
	assert.False(t, IsKind(errFault, EntryError))

	assert.True(t, errors.Is(wrapped, errFault))
	assert.Equal(t, errFault, errors.Cause(wrapped))
}
