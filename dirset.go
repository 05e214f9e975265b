package triage

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// dirSet remembers the output directories that were already created, so
// every directory is created at most once per run.
type dirSet struct {
	sync.RWMutex
	fs      afero.Fs
	created map[string]bool
}

func newDirSet(fs afero.Fs) *dirSet {
	return &dirSet{
		fs:      fs,
		created: map[string]bool{},
	}
}

func (ds *dirSet) has(dir string) bool {
	ds.RLock()
	defer ds.RUnlock()
	return ds.created[dir]
}

// ensure creates dir and all missing parents. Directories that exist
// already count as created.
func (ds *dirSet) ensure(dir string) error {
	if ds.has(dir) {
		return nil
	}

	ds.Lock()
	defer ds.Unlock()
	if ds.created[dir] {
		return nil
	}
	if err := ds.fs.MkdirAll(dir, 0755); err != nil && !os.IsExist(err) {
		return err
	}
	ds.created[dir] = true
	return nil
}

func (ds *dirSet) all() []string {
	ds.RLock()
	defer ds.RUnlock()
	return keys(ds.created)
}
