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

package triage

import (
	"log"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/triage/provider"
)

// ImageName is the display name of an image, its base name.
func ImageName(imagePath string) string {
	return filepath.Base(imagePath)
}

// Mount is a filesystem found in a partition.
type Mount struct {
	Partition provider.Partition
	FS        provider.Filesystem
}

// Session is an opened image.
type Session struct {
	Name   string
	Path   string
	image  provider.Image
	logger *log.Logger
}

// OpenSession opens the image at imagePath with p.
func OpenSession(p provider.Provider, imagePath string, logger *log.Logger) (*Session, error) {
	name := ImageName(imagePath)
	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		absPath = imagePath
	}

	image, err := p.OpenImage(imagePath)
	if err != nil {
		return nil, &Error{Kind: SetupError, Image: name, Err: errors.Wrap(err, "could not open image")}
	}
	return &Session{Name: name, Path: absPath, image: image, logger: logger}, nil
}

// Partitions lists the partitions of the image.
func (s *Session) Partitions() ([]provider.Partition, error) {
	partitions, err := s.image.Partitions()
	if err != nil {
		return nil, &Error{Kind: SetupError, Image: s.Name, Err: errors.Wrap(err, "could not read partition table")}
	}
	return partitions, nil
}

// Filesystems tries to mount a filesystem in every partition. Partitions
// without a filesystem are logged and skipped. Mount failures other than
// a missing filesystem are returned as I/O errors of the partition.
func (s *Session) Filesystems() ([]Mount, []*Error, error) {
	partitions, err := s.Partitions()
	if err != nil {
		return nil, nil, err
	}

	var mounts []Mount
	var failures []*Error
	for _, partition := range partitions {
		offset := partition.Start * s.image.SectorSize()
		fs, err := s.image.Mount(offset)
		if err != nil {
			if errors.Is(err, provider.ErrNoFilesystem) {
				s.logger.Printf("partition %d : %s: no filesystem at offset %d", partition.Index, partition.Description, offset)
				continue
			}
			e := &Error{Kind: IOError, Image: s.Name, Partition: partition.Index, Err: errors.Wrapf(err, "could not mount filesystem at offset %d", offset)}
			s.logger.Print(e.detail())
			failures = append(failures, e)
			continue
		}
		s.logger.Printf("opening partition %d : %s at offset %d", partition.Index, partition.Description, offset)
		mounts = append(mounts, Mount{Partition: partition, FS: fs})
	}

	if len(mounts) == 0 {
		return nil, failures, &Error{Kind: SetupError, Image: s.Name, Err: ErrNoFilesystems}
	}
	return mounts, failures, nil
}

// Close closes the image.
func (s *Session) Close() error {
	return s.image.Close()
}
