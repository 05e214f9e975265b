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

// Package aferofs provides logical images: directory trees that were already
// exported from a disk, read through an afero.Fs. Every immediate child of
// an image directory is one partition. Child directories hold a filesystem,
// child files are partitions without one (e.g. swap or raw dumps).
package aferofs

import (
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/triage/provider"
)

const (
	sectorSize = 512
	// partitions are laid out 1 MiB apart
	partitionAlignment = 2048
)

// ErrNotLogicalImage is returned for image paths that are not directories.
var ErrNotLogicalImage = errors.New("not a logical image directory")

// Provider opens logical images from an afero.Fs.
type Provider struct {
	fs afero.Fs
}

// New creates a Provider that reads images from fs.
func New(fs afero.Fs) *Provider {
	return &Provider{fs: fs}
}

// OpenImage lists the partitions of the image directory at url.
func (p *Provider) OpenImage(url string) (provider.Image, error) {
	info, err := p.fs.Stat(url)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Wrap(ErrNotLogicalImage, url)
	}

	children, err := afero.ReadDir(p.fs, url)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", url)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	img := &image{fs: p.fs, roots: map[int64]string{}, dirs: map[int64]bool{}}
	for i, child := range children {
		start := int64(i+1) * partitionAlignment
		length := child.Size() / sectorSize
		img.partitions = append(img.partitions, provider.Partition{
			Index:       i + 1,
			Description: child.Name(),
			Start:       start,
			Length:      length,
		})
		img.roots[start*sectorSize] = filepath.Join(url, child.Name())
		img.dirs[start*sectorSize] = child.IsDir()
	}
	return img, nil
}

type image struct {
	fs         afero.Fs
	partitions []provider.Partition
	roots      map[int64]string
	dirs       map[int64]bool
}

func (i *image) Partitions() ([]provider.Partition, error) {
	return i.partitions, nil
}

func (i *image) SectorSize() int64 {
	return sectorSize
}

func (i *image) Mount(offset int64) (provider.Filesystem, error) {
	root, ok := i.roots[offset]
	if !ok || !i.dirs[offset] {
		return nil, provider.ErrNoFilesystem
	}
	return &filesystem{fs: i.fs, root: root, ids: map[string]uint64{}}, nil
}

func (i *image) Close() error {
	return nil
}

// filesystem hands out inode numbers in the order paths are first seen.
type filesystem struct {
	fs   afero.Fs
	root string
	ids  map[string]uint64
}

func (f *filesystem) id(p string) uint64 {
	if id, ok := f.ids[p]; ok {
		return id
	}
	id := uint64(len(f.ids) + 1)
	f.ids[p] = id
	return id
}

func (f *filesystem) realPath(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}

func (f *filesystem) Root() (*provider.Entry, error) {
	info, err := f.fs.Stat(f.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", f.root)
	}
	return &provider.Entry{
		Name:      "/",
		Path:      "/",
		ID:        f.id("/"),
		Kind:      provider.KindDirectory,
		Allocated: true,
		Meta:      true,
	}, nil
}

func (f *filesystem) ReadDir(dir *provider.Entry) ([]*provider.Entry, error) {
	infos, err := afero.ReadDir(f.fs, f.realPath(dir.Path))
	if err != nil {
		return nil, err
	}

	var entries []*provider.Entry
	for _, info := range infos {
		p := path.Join(dir.Path, info.Name())
		entries = append(entries, &provider.Entry{
			Name:      info.Name(),
			Path:      p,
			ID:        f.id(p),
			Kind:      kind(info),
			Size:      info.Size(),
			Allocated: true,
			Meta:      true,
		})
	}
	return entries, nil
}

func kind(info os.FileInfo) provider.Kind {
	switch {
	case info.IsDir():
		return provider.KindDirectory
	case info.Mode().IsRegular():
		return provider.KindRegular
	default:
		return provider.KindOther
	}
}

func (f *filesystem) Open(entry *provider.Entry) (provider.Content, error) {
	return f.fs.Open(f.realPath(entry.Path))
}
