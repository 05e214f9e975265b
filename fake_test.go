package triage

import (
	"io"
	"path"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/triage/provider"
)

const rootID = 5

var errFault = errors.New("bad sector")

// fakeFS is an in-memory filesystem that can misbehave: directories that
// cannot be listed, files that cannot be opened, read faults at an offset,
// unallocated and metadata-less entries and directory cycles.
type fakeFS struct {
	nextID   uint64
	paths    map[uint64]string
	children map[uint64][]provider.Entry
	content  map[uint64][]byte
	faultAt  map[uint64]int64
	listErr  map[uint64]bool
	openErr  map[uint64]bool
	rootErr  error
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		nextID:   rootID + 1,
		paths:    map[uint64]string{rootID: "/"},
		children: map[uint64][]provider.Entry{},
		content:  map[uint64][]byte{},
		faultAt:  map[uint64]int64{},
		listErr:  map[uint64]bool{},
		openErr:  map[uint64]bool{},
	}
}

// add appends a raw entry to the directory parent. Path and ID are
// filled in if they are empty.
func (f *fakeFS) add(parent uint64, e provider.Entry) uint64 {
	if e.ID == 0 {
		e.ID = f.nextID
		f.nextID++
	}
	if e.Path == "" && e.Name != "" && e.Name != "." && e.Name != ".." {
		e.Path = path.Join(f.paths[parent], e.Name)
	}
	if e.Kind == provider.KindDirectory && f.paths[e.ID] == "" {
		f.paths[e.ID] = e.Path
	}
	f.children[parent] = append(f.children[parent], e)
	return e.ID
}

func (f *fakeFS) lookup(p string) uint64 {
	for id, dirPath := range f.paths {
		if dirPath == p {
			return id
		}
	}
	return 0
}

// mkdirAll creates all directories of the absolute path p.
func (f *fakeFS) mkdirAll(p string) uint64 {
	p = path.Clean("/" + p)
	if id := f.lookup(p); id != 0 {
		return id
	}
	parent := f.mkdirAll(path.Dir(p))
	return f.add(parent, provider.Entry{Name: path.Base(p), Kind: provider.KindDirectory, Allocated: true, Meta: true})
}

// writeFile creates a regular file and its directories.
func (f *fakeFS) writeFile(p, content string) uint64 {
	parent := f.mkdirAll(path.Dir(p))
	id := f.add(parent, provider.Entry{Name: path.Base(p), Kind: provider.KindRegular, Size: int64(len(content)), Allocated: true, Meta: true})
	f.content[id] = []byte(content)
	return id
}

func (f *fakeFS) Root() (*provider.Entry, error) {
	if f.rootErr != nil {
		return nil, f.rootErr
	}
	return &provider.Entry{Name: "/", Path: "/", ID: rootID, Kind: provider.KindDirectory, Allocated: true, Meta: true}, nil
}

func (f *fakeFS) ReadDir(dir *provider.Entry) ([]*provider.Entry, error) {
	if f.listErr[dir.ID] {
		return nil, errors.Wrapf(errFault, "could not list %s", dir.Path)
	}
	var entries []*provider.Entry
	for _, e := range f.children[dir.ID] {
		e := e
		entries = append(entries, &e)
	}
	return entries, nil
}

func (f *fakeFS) Open(entry *provider.Entry) (provider.Content, error) {
	if f.openErr[entry.ID] {
		return nil, errFault
	}
	data, ok := f.content[entry.ID]
	if !ok {
		return nil, errors.Errorf("no content for %d", entry.ID)
	}
	faultAt, ok := f.faultAt[entry.ID]
	if !ok {
		faultAt = int64(len(data))
	}
	return &fakeContent{data: data, faultAt: faultAt}, nil
}

type fakeContent struct {
	data    []byte
	faultAt int64
	closed  bool
}

func (c *fakeContent) ReadAt(p []byte, off int64) (int, error) {
	if off >= c.faultAt {
		return 0, errFault
	}
	end := off + int64(len(p))
	if end > c.faultAt {
		end = c.faultAt
	}
	n := copy(p, c.data[off:end])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (c *fakeContent) Close() error {
	c.closed = true
	return nil
}

// fakeImage mounts the filesystem registered for a byte offset.
type fakeImage struct {
	partitions []provider.Partition
	mounts     map[int64]provider.Filesystem
	mountErr   map[int64]error
	tableErr   error
}

func (i *fakeImage) Partitions() ([]provider.Partition, error) {
	return i.partitions, i.tableErr
}

func (i *fakeImage) SectorSize() int64 { return 512 }

func (i *fakeImage) Mount(offset int64) (provider.Filesystem, error) {
	if err, ok := i.mountErr[offset]; ok {
		return nil, err
	}
	if fs, ok := i.mounts[offset]; ok {
		return fs, nil
	}
	return nil, provider.ErrNoFilesystem
}

func (i *fakeImage) Close() error { return nil }

// singleImage is an image with one partition at sector 2048 holding fs.
func singleImage(fs provider.Filesystem) *fakeImage {
	return &fakeImage{
		partitions: []provider.Partition{{Index: 1, Description: "NTFS", Start: 2048, Length: 4096}},
		mounts:     map[int64]provider.Filesystem{2048 * 512: fs},
	}
}

type fakeProvider map[string]*fakeImage

func (p fakeProvider) OpenImage(imagePath string) (provider.Image, error) {
	img, ok := p[imagePath]
	if !ok {
		return nil, errors.Errorf("cannot open %s", imagePath)
	}
	return img, nil
}
